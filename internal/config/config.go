// Package config loads chunkvault's configuration with koanf, layering an
// optional YAML file under environment variables, the way
// Terminal-Terrace's services/sse-wiki/config/config.go layers file.Provider
// under env.Provider. Field coverage follows original_source/app/config.py's
// Settings model field-for-field.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is chunkvault's full runtime configuration.
type Config struct {
	AppName    string `koanf:"app_name"`
	AppVersion string `koanf:"app_version"`
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`

	DatabaseURL string `koanf:"database_url"`

	StorageBackend    string `koanf:"storage_backend"`
	StorageRoot       string `koanf:"storage_root"`
	S3Bucket          string `koanf:"s3_bucket"`
	AWSRegion         string `koanf:"aws_region"`
	R2Bucket          string `koanf:"r2_bucket"`
	R2AccountID       string `koanf:"r2_account_id"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2SecretAccessKey string `koanf:"r2_secret_access_key"`
	R2EndpointURL     string `koanf:"r2_endpoint_url"`
	MultipartThreshold int64  `koanf:"multipart_threshold_bytes"`

	AuthMode              string `koanf:"auth_mode"`
	APIKeyMappings        string `koanf:"api_key_mappings"`
	AdminUserIDs          string `koanf:"admin_user_ids"`
	APIRateLimitPerMinute int    `koanf:"api_rate_limit_per_minute"`
	JWTSecret             string `koanf:"jwt_secret"`
	JWTAlgorithm          string `koanf:"jwt_algorithm"`
	JWTAudience           string `koanf:"jwt_audience"`
	JWTIssuer             string `koanf:"jwt_issuer"`

	TracingEnabled     bool   `koanf:"tracing_enabled"`
	TracingServiceName string `koanf:"tracing_service_name"`
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`

	LogLevel string `koanf:"log_level"`

	ChunkSizeBytes int64 `koanf:"chunk_size_bytes"`
	MaxRetries     int   `koanf:"max_retries"`

	MaxInflightChunksPerUpload     int `koanf:"max_inflight_chunks_per_upload"`
	MaxFairInflightChunksPerUpload int `koanf:"max_fair_inflight_chunks_per_upload"`
	MaxGlobalInflightChunks        int `koanf:"max_global_inflight_chunks"`
	TaskQueueMaxSize               int `koanf:"task_queue_maxsize"`

	WorkerCount                  int     `koanf:"worker_count"`
	AutoscaleEnabled             bool    `koanf:"autoscale_enabled"`
	MinWorkers                   int     `koanf:"min_workers"`
	MaxWorkers                   int     `koanf:"max_workers"`
	AutoscaleCooldownSeconds     int     `koanf:"autoscale_cooldown_seconds"`
	ScaleUpQueueThreshold        int     `koanf:"scale_up_queue_threshold"`
	ScaleUpUtilizationThreshold  float64 `koanf:"scale_up_utilization_threshold"`
	ScaleDownUtilizationThreshold float64 `koanf:"scale_down_utilization_threshold"`

	QueueBackend             string `koanf:"queue_backend"`
	QueueConsumerCount       int    `koanf:"queue_consumer_count"`
	QueuePollTimeoutSeconds  int    `koanf:"queue_poll_timeout_seconds"`
	QueueTaskTimeoutSeconds  int    `koanf:"queue_task_timeout_seconds"`
	RedisURL                 string `koanf:"redis_url"`
	RedisQueueName           string `koanf:"redis_queue_name"`
	SQSQueueURL              string `koanf:"sqs_queue_url"`

	CleanupEnabled         bool `koanf:"cleanup_enabled"`
	CleanupIntervalSeconds int  `koanf:"cleanup_interval_seconds"`
	StaleUploadTTLSeconds  int  `koanf:"stale_upload_ttl_seconds"`
	IdempotencyTTLSeconds  int  `koanf:"idempotency_ttl_seconds"`
}

func defaults() *Config {
	return &Config{
		AppName:    "chunkvault",
		AppVersion: "dev",
		Host:       "0.0.0.0",
		Port:       8000,

		DatabaseURL: "sqlite://./chunkvault.db",

		StorageBackend:     "local",
		StorageRoot:        "./data",
		AWSRegion:          "us-east-1",
		MultipartThreshold: 64 * 1024 * 1024,

		AuthMode:       "api_key",
		APIKeyMappings: "dev-key:dev-user",
		AdminUserIDs:   "dev-user",
		JWTAlgorithm:   "HS256",

		TracingServiceName: "chunkvault",
		OTLPEndpoint:       "localhost:4318",
		OTLPInsecure:       true,

		LogLevel: "info",

		ChunkSizeBytes: 5 * 1024 * 1024,
		MaxRetries:     3,

		MaxInflightChunksPerUpload: 8,
		MaxGlobalInflightChunks:    128,
		TaskQueueMaxSize:           512,

		WorkerCount:                   16,
		MinWorkers:                    8,
		MaxWorkers:                    32,
		AutoscaleCooldownSeconds:      15,
		ScaleUpQueueThreshold:         1,
		ScaleUpUtilizationThreshold:   0.8,
		ScaleDownUtilizationThreshold: 0.2,

		QueueBackend:            "memory",
		QueueConsumerCount:      4,
		QueuePollTimeoutSeconds: 5,
		QueueTaskTimeoutSeconds: 45,
		RedisURL:                "redis://localhost:6379/0",
		RedisQueueName:          "chunkvault-chunk-tasks",

		CleanupIntervalSeconds: 900,
		StaleUploadTTLSeconds:  86400,
		IdempotencyTTLSeconds:  86400,
	}
}

// Load builds a Config by starting from defaults, layering an optional YAML
// file at path (skipped if empty or missing), then environment variables
// (which win), mirroring sse-wiki's config.Load layering order. envPrefix,
// when non-empty, is stripped from variable names before the CHUNKVAULT_
// nested-key translation (e.g. CHUNKVAULT_WORKER_COUNT -> worker_count).
func Load(path, envPrefix string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	cfg := defaults()
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("seed config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	out := &Config{}
	if err := k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return out, nil
}

// ParsedAPIKeyMappings splits "key1:user1,key2:user2" into a map, matching
// original_source's api_key_mappings parsing in main.py's auth dependency.
func (c *Config) ParsedAPIKeyMappings() map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(c.APIKeyMappings, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

// ParsedAdminUserIDs splits the comma-separated admin_user_ids setting into
// a set.
func (c *Config) ParsedAdminUserIDs() map[string]struct{} {
	out := map[string]struct{}{}
	for _, id := range strings.Split(c.AdminUserIDs, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out[id] = struct{}{}
	}
	return out
}

func (c *Config) AutoscaleCooldown() time.Duration {
	return time.Duration(c.AutoscaleCooldownSeconds) * time.Second
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

func (c *Config) StaleUploadTTL() time.Duration {
	return time.Duration(c.StaleUploadTTLSeconds) * time.Second
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}
