package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry reserves idempotency keys in Redis via SetNX, so multiple
// chunkvault instances share one reservation namespace the way the
// teacher's setup.go wires a shared *redis.Client into its caching layer.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

type redisRecord struct {
	UploadID    string    `json:"upload_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Fingerprint string    `json:"fingerprint"`
	ResultJSON  string    `json:"result_json,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func redisKey(kind, key string) string {
	return fmt.Sprintf("chunkvault:idempotency:%s:%s", kind, key)
}

func (r *RedisRegistry) Reserve(ctx context.Context, kind, key, fingerprint, uploadID string, chunkIndex int) (Outcome, *Record, error) {
	rec := redisRecord{
		UploadID:    uploadID,
		ChunkIndex:  chunkIndex,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Fresh, nil, err
	}

	rk := redisKey(kind, key)
	ok, err := r.client.SetNX(ctx, rk, payload, r.ttl).Result()
	if err != nil {
		return Fresh, nil, err
	}
	if ok {
		return Fresh, nil, nil
	}

	existingRaw, err := r.client.Get(ctx, rk).Result()
	if err != nil {
		return Fresh, nil, err
	}
	var existing redisRecord
	if err := json.Unmarshal([]byte(existingRaw), &existing); err != nil {
		return Fresh, nil, err
	}

	out := &Record{
		UploadID:    existing.UploadID,
		ChunkIndex:  existing.ChunkIndex,
		Fingerprint: existing.Fingerprint,
		ResultJSON:  existing.ResultJSON,
		CreatedAt:   existing.CreatedAt,
	}
	if existing.Fingerprint != fingerprint {
		return Conflict, out, nil
	}
	return Replay, out, nil
}

func (r *RedisRegistry) StoreResult(ctx context.Context, kind, key, resultJSON string) error {
	rk := redisKey(kind, key)
	raw, err := r.client.Get(ctx, rk).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return err
	}
	rec.ResultJSON = resultJSON

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ttl, err := r.client.TTL(ctx, rk).Result()
	if err != nil || ttl <= 0 {
		ttl = r.ttl
	}
	return r.client.Set(ctx, rk, payload, ttl).Err()
}

// GC is a no-op: Redis key TTLs already expire reservations, unlike the
// in-memory registry, which needs an explicit sweep.
func (r *RedisRegistry) GC(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}
