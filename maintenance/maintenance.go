// Package maintenance runs chunkvault's periodic and admin-triggered
// cleanup pass: expiring stale uploads, garbage-collecting idempotency
// records, and sweeping orphaned storage blobs. Grounded on
// original_source/app/maintenance.py's cleanup_once, adapted to transition
// stale uploads to ABORTED (per spec.md's state machine) rather than
// hard-deleting the upload row.
package maintenance

import (
	"context"
	"strings"
	"time"

	"github.com/halvardsen/chunkvault/idempotency"
	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/internal/metrics"
	"github.com/halvardsen/chunkvault/models"
	"github.com/halvardsen/chunkvault/storage"
	"github.com/halvardsen/chunkvault/store"
)

// Result tallies one cleanup pass's effects, the Go analogue of
// cleanup_once's returned dict.
type Result struct {
	StaleUploadsAborted    int
	IdempotencyRowsDeleted int
	StorageKeysDeleted     int
}

// Sweeper runs the cleanup pass: abort stale uploads, garbage-collect
// idempotency records, and optionally sweep orphaned storage blobs.
type Sweeper struct {
	metaStore        store.MetadataStore
	storage          storage.ChunkStorage
	idemp            idempotency.Registry
	staleUploadTTL   time.Duration
	idempotencyTTL   time.Duration
	sweepOrphanBlobs bool
	log              logging.Logger
	m                *metrics.Metrics
}

func NewSweeper(metaStore store.MetadataStore, chunkStorage storage.ChunkStorage, idemp idempotency.Registry, staleUploadTTL, idempotencyTTL time.Duration, sweepOrphanBlobs bool, log logging.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		metaStore:        metaStore,
		storage:          chunkStorage,
		idemp:            idemp,
		staleUploadTTL:   staleUploadTTL,
		idempotencyTTL:   idempotencyTTL,
		sweepOrphanBlobs: sweepOrphanBlobs,
		log:              log,
		m:                m,
	}
}

// Run executes one cleanup pass, usable both from a periodic ticker and
// from the admin-triggered endpoint, matching cleanup_once's dual call
// sites in original_source.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	result := Result{}

	now := time.Now().UTC()
	staleBefore := now.Add(-s.staleUploadTTL)

	staleUploads, err := s.metaStore.ListStaleUploads(ctx, staleBefore)
	if err != nil {
		return result, err
	}

	for _, upload := range staleUploads {
		s.abortStaleUpload(ctx, upload, &result)
	}

	deleted, err := s.idemp.GC(ctx, s.idempotencyTTL)
	if err != nil {
		s.log.Warn("idempotency gc failed", "error", err)
	} else {
		result.IdempotencyRowsDeleted = deleted
	}

	if s.sweepOrphanBlobs {
		s.sweepOrphans(ctx, &result)
	}

	if s.m != nil {
		s.m.CleanupRunsTotal.Inc()
	}
	s.log.Info("cleanup pass completed",
		"stale_uploads_aborted", result.StaleUploadsAborted,
		"idempotency_rows_deleted", result.IdempotencyRowsDeleted,
		"storage_keys_deleted", result.StorageKeysDeleted,
	)
	return result, nil
}

func (s *Sweeper) abortStaleUpload(ctx context.Context, upload *models.Upload, result *Result) {
	chunks, err := s.metaStore.ListChunks(ctx, upload.ID)
	if err != nil {
		s.log.Warn("failed to list chunks for stale upload", "upload_id", upload.ID, "error", err)
		return
	}

	for _, chunk := range chunks {
		if err := s.storage.DeleteKey(ctx, chunk.StorageKey); err != nil {
			s.log.Warn("failed to delete chunk blob during cleanup", "upload_id", upload.ID, "storage_key", chunk.StorageKey, "error", err)
			continue
		}
		result.StorageKeysDeleted++
	}

	if upload.MultipartUploadID != "" {
		if err := s.storage.DeleteKey(ctx, s.storage.AssembledKey(upload.ID)); err == nil {
			result.StorageKeysDeleted++
		}
	}

	if err := s.metaStore.TransitionUploadStatus(ctx, upload.ID, upload.Status, models.UploadAborted); err != nil && err != store.ErrConditionFailed {
		s.log.Warn("failed to abort stale upload", "upload_id", upload.ID, "error", err)
		return
	}

	result.StaleUploadsAborted++
}

func (s *Sweeper) sweepOrphans(ctx context.Context, result *Result) {
	keys, err := s.storage.ListKeys(ctx, "uploads/")
	if err != nil {
		s.log.Warn("orphan sweep: failed to list storage keys", "error", err)
		return
	}

	referenced := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		uploadID := uploadIDFromKey(key)
		if uploadID == "" {
			continue
		}
		if upload, err := s.metaStore.GetUpload(ctx, uploadID); err == nil && upload != nil {
			referenced[key] = struct{}{}
		}
	}

	for _, key := range keys {
		if _, ok := referenced[key]; ok {
			continue
		}
		if err := s.storage.DeleteKey(ctx, key); err == nil {
			result.StorageKeysDeleted++
		}
	}
}

func uploadIDFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 2 || parts[0] != "uploads" {
		return ""
	}
	return parts[1]
}
