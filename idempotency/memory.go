package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry, suitable for single-instance
// deployments or tests, analogous to the teacher's in-memory fallbacks
// elsewhere in the pack when no external cache is configured.
type MemoryRegistry struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: map[string]*Record{}}
}

func compositeKey(kind, key string) string { return kind + "\x00" + key }

func (m *MemoryRegistry) Reserve(ctx context.Context, kind, key, fingerprint, uploadID string, chunkIndex int) (Outcome, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ck := compositeKey(kind, key)
	if existing, ok := m.records[ck]; ok {
		if existing.Fingerprint != fingerprint {
			return Conflict, existing, nil
		}
		return Replay, existing, nil
	}

	rec := &Record{
		UploadID:    uploadID,
		ChunkIndex:  chunkIndex,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
	}
	m.records[ck] = rec
	return Fresh, nil, nil
}

func (m *MemoryRegistry) StoreResult(ctx context.Context, kind, key, resultJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ck := compositeKey(kind, key)
	rec, ok := m.records[ck]
	if !ok {
		return nil
	}
	rec.ResultJSON = resultJSON
	return nil
}

func (m *MemoryRegistry) GC(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for k, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.records, k)
			deleted++
		}
	}
	return deleted, nil
}
