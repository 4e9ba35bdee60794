// Command server is chunkvault's composition root: it loads configuration,
// wires the metadata store, chunk storage backend, idempotency registry,
// durable queue, worker pool, upload/download services and HTTP router,
// then runs until signalled, shutting everything down in reverse order.
// Grounded on the teacher's setup.go (SetupApp/Run/Shutdown) merged with
// original_source/app/main.py's lifespan context manager, which starts the
// same set of background loops (autoscaler, durable-queue consumers,
// periodic cleanup) alongside the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/halvardsen/chunkvault/download"
	"github.com/halvardsen/chunkvault/httpapi"
	"github.com/halvardsen/chunkvault/idempotency"
	"github.com/halvardsen/chunkvault/internal/config"
	"github.com/halvardsen/chunkvault/internal/health"
	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/internal/metrics"
	"github.com/halvardsen/chunkvault/internal/tracing"
	"github.com/halvardsen/chunkvault/limiter"
	"github.com/halvardsen/chunkvault/maintenance"
	"github.com/halvardsen/chunkvault/queue"
	"github.com/halvardsen/chunkvault/storage"
	"github.com/halvardsen/chunkvault/store"
	"github.com/halvardsen/chunkvault/upload"
	"github.com/halvardsen/chunkvault/worker"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, "CHUNKVAULT_")
	if err != nil {
		panic(err)
	}

	log := logging.New(os.Stdout, cfg.LogLevel)
	m := metrics.Init(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.Init(ctx, cfg.TracingServiceName, cfg.OTLPEndpoint, cfg.OTLPInsecure)
		if err != nil {
			log.Error("tracing init failed", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	metaStore, readinessChecks := buildMetadataStore(ctx, cfg, log)
	chunkStorage, storageIsObjectBackend := buildStorage(ctx, cfg, log)
	idempRegistry := buildIdempotencyRegistry(cfg)
	admission := limiter.NewAdmissionController(
		cfg.TaskQueueMaxSize,
		cfg.MaxGlobalInflightChunks,
		cfg.MaxInflightChunksPerUpload,
		cfg.MaxFairInflightChunksPerUpload,
		cfg.WorkerCount,
		m,
	)

	persist := func(taskCtx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, error) {
		return chunkStorage.WriteChunk(taskCtx, uploadID, chunkIndex, data, multipartUploadID)
	}

	pool := worker.NewPool(
		cfg.WorkerCount,
		cfg.MaxRetries,
		time.Duration(cfg.QueueTaskTimeoutSeconds)*time.Second,
		time.Duration(cfg.QueueTaskTimeoutSeconds)*time.Second,
		log,
		m,
	)
	defer pool.Close()

	var dispatcher upload.Dispatcher
	var durableQueue queue.DurableQueue
	results := queue.NewResultStore()

	if cfg.QueueBackend == "memory" {
		dispatcher = worker.NewInlineDispatcher(pool, persist)
	} else {
		durableQueue = buildDurableQueue(ctx, cfg)
		dispatcher = worker.NewDurableQueueDispatcher(durableQueue, results, time.Duration(cfg.QueueTaskTimeoutSeconds)*time.Second)

		for i := 0; i < cfg.QueueConsumerCount; i++ {
			consumer := worker.NewConsumer(i, durableQueue, results, persist, time.Duration(cfg.QueuePollTimeoutSeconds)*time.Second, log)
			go consumer.Run(ctx)
		}
	}

	if cfg.AutoscaleEnabled {
		autoscaler := worker.NewAutoscaler(pool, worker.AutoscalerConfig{
			MinWorkers:                    cfg.MinWorkers,
			MaxWorkers:                    cfg.MaxWorkers,
			Cooldown:                      cfg.AutoscaleCooldown(),
			ScaleUpQueueThreshold:         cfg.ScaleUpQueueThreshold,
			ScaleUpUtilizationThreshold:   cfg.ScaleUpUtilizationThreshold,
			ScaleDownUtilizationThreshold: cfg.ScaleDownUtilizationThreshold,
		}, log, m)
		go autoscaler.Run(ctx)
	}

	uploadSvc := upload.NewService(
		metaStore,
		chunkStorage,
		idempRegistry,
		admission,
		dispatcher,
		cfg.ChunkSizeBytes,
		cfg.MultipartThreshold,
		storageIsObjectBackend,
		cfg.MaxRetries,
		log,
		m,
	)
	downloadSvc := download.NewAssembler(metaStore, chunkStorage)
	sweeper := maintenance.NewSweeper(metaStore, chunkStorage, idempRegistry, cfg.StaleUploadTTL(), cfg.IdempotencyTTL(), storageIsObjectBackend, log, m)

	if cfg.CleanupEnabled {
		go runCleanupLoop(ctx, sweeper, cfg.CleanupInterval(), log)
	}

	handlers := httpapi.NewHandlers(uploadSvc, downloadSvc, sweeper, cfg.AppVersion, log)
	authenticator := httpapi.NewAuthenticator(
		cfg.AuthMode,
		cfg.ParsedAPIKeyMappings(),
		cfg.ParsedAdminUserIDs(),
		cfg.JWTSecret,
		cfg.JWTAlgorithm,
		cfg.JWTAudience,
		cfg.JWTIssuer,
	)
	aggregator := health.NewAggregator(5*time.Second, readinessChecks...)
	go aggregator.Run(ctx)

	router := httpapi.NewRouter(handlers, authenticator, aggregator, m, log, cfg.AppVersion)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}

	go func() {
		log.Info("chunkvault listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func runCleanupLoop(ctx context.Context, sweeper *maintenance.Sweeper, interval time.Duration, log logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := sweeper.Run(ctx)
			if err != nil {
				log.Error("cleanup sweep failed", "error", err)
				continue
			}
			log.Info("cleanup sweep completed",
				"stale_uploads_aborted", result.StaleUploadsAborted,
				"idempotency_rows_deleted", result.IdempotencyRowsDeleted,
				"storage_keys_deleted", result.StorageKeysDeleted,
			)
		}
	}
}

func buildMetadataStore(ctx context.Context, cfg *config.Config, log logging.Logger) (store.MetadataStore, []health.ReadinessCheck) {
	if cfg.DatabaseURL != "" && cfg.DatabaseURL != "dynamodb" {
		gormStore, err := store.OpenGorm(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			panic(err)
		}
		return gormStore, []health.ReadinessCheck{gormStore}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		panic(err)
	}
	client := dynamodb.NewFromConfig(awsCfg)
	dynamoStore := store.NewDynamoStore(client, "chunkvault_uploads", "chunkvault_chunks")
	return dynamoStore, []health.ReadinessCheck{dynamoStore}
}

func buildStorage(ctx context.Context, cfg *config.Config, log logging.Logger) (storage.ChunkStorage, bool) {
	switch cfg.StorageBackend {
	case "s3", "r2":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			panic(err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.StorageBackend == "r2" && cfg.R2EndpointURL != "" {
				o.BaseEndpoint = &cfg.R2EndpointURL
				o.UsePathStyle = true
			}
		})
		bucket := cfg.S3Bucket
		if cfg.StorageBackend == "r2" {
			bucket = cfg.R2Bucket
		}
		return storage.NewS3Storage(client, bucket, cfg.MultipartThreshold, log), true
	default:
		local, err := storage.NewLocalStorage(cfg.StorageRoot)
		if err != nil {
			panic(err)
		}
		return local, false
	}
}

// buildIdempotencyRegistry shares the redis queue's backend when one is
// configured, the same way original_source reuses a single Redis
// connection for both the durable queue and idempotency records.
func buildIdempotencyRegistry(cfg *config.Config) idempotency.Registry {
	if cfg.QueueBackend == "redis" {
		client := redis.NewClient(mustParseRedisURL(cfg.RedisURL))
		return idempotency.NewRedisRegistry(client, cfg.IdempotencyTTL())
	}
	return idempotency.NewMemoryRegistry()
}

func buildDurableQueue(ctx context.Context, cfg *config.Config) queue.DurableQueue {
	switch cfg.QueueBackend {
	case "redis":
		client := redis.NewClient(mustParseRedisURL(cfg.RedisURL))
		return queue.NewRedisQueue(client, cfg.RedisQueueName)
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			panic(err)
		}
		client := sqs.NewFromConfig(awsCfg)
		return queue.NewSQSQueue(client, cfg.SQSQueueURL, int32(cfg.QueueTaskTimeoutSeconds))
	default:
		return queue.NewMemoryQueue(cfg.TaskQueueMaxSize)
	}
}

func mustParseRedisURL(raw string) *redis.Options {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		panic(err)
	}
	return opts
}

