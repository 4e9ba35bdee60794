// Package upload implements chunkvault's upload state machine: Init,
// AcceptChunk, Complete, MissingChunks, Abort. Grounded directly on
// original_source/app/main.py's init_upload/upload_chunk/complete_upload/
// missing_chunks route bodies, with the durable-queue-vs-inline dispatch
// folded behind the worker.Dispatcher abstraction.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halvardsen/chunkvault/idempotency"
	"github.com/halvardsen/chunkvault/internal/apperror"
	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/internal/metrics"
	"github.com/halvardsen/chunkvault/limiter"
	"github.com/halvardsen/chunkvault/models"
	"github.com/halvardsen/chunkvault/storage"
	"github.com/halvardsen/chunkvault/store"
)

// Dispatcher persists one chunk's bytes, either inline (worker.Pool,
// synchronous) or via a durable queue + queue.ResultStore wait. It hides
// the _use_external_durable_queue() branch from main.py's upload_chunk
// behind a single call.
type Dispatcher interface {
	Dispatch(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, error)
}

// InitRequest mirrors original_source's InitUploadRequest body.
type InitRequest struct {
	FileName           string
	FileSize           int64
	ChunkSize          int64
	FileChecksumSHA256 string
}

type InitResult struct {
	UploadID    string
	ChunkSize   int64
	TotalChunks int
	Status      models.UploadStatus
}

type ChunkResult struct {
	UploadID   string
	ChunkIndex int
	Status     models.ChunkStatus
}

type CompleteResult struct {
	UploadID string
	Status   models.UploadStatus
}

type MissingResult struct {
	UploadID             string
	MissingChunkIndexes  []int
	Status               models.UploadStatus
}

// Service implements the upload FSM against a MetadataStore, a
// ChunkStorage, an idempotency.Registry, and admission control.
type Service struct {
	metaStore  store.MetadataStore
	storage    storage.ChunkStorage
	idemp      idempotency.Registry
	limiter    *limiter.AdmissionController
	dispatch   Dispatcher
	defaultChunkSize   int64
	multipartThreshold int64
	storageIsObjectBackend bool
	maxRetries int
	log        logging.Logger
	m          *metrics.Metrics
}

func NewService(
	metaStore store.MetadataStore,
	chunkStorage storage.ChunkStorage,
	idemp idempotency.Registry,
	admission *limiter.AdmissionController,
	dispatch Dispatcher,
	defaultChunkSize, multipartThreshold int64,
	storageIsObjectBackend bool,
	maxRetries int,
	log logging.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		metaStore:              metaStore,
		storage:                chunkStorage,
		idemp:                  idemp,
		limiter:                admission,
		dispatch:               dispatch,
		defaultChunkSize:       defaultChunkSize,
		multipartThreshold:     multipartThreshold,
		storageIsObjectBackend: storageIsObjectBackend,
		maxRetries:             maxRetries,
		log:                    log,
		m:                      m,
	}
}

// minMultipartPartSize mirrors original_source's MIN_MULTIPART_PART_SIZE
// constant guarding when a multi-chunk upload is worth a multipart session.
const minMultipartPartSize = 5 * 1024 * 1024

// fingerprint hashes a canonical JSON encoding of obj, the Go analogue of
// main.py's _fingerprint (json.dumps sort_keys + sha256).
func fingerprint(obj map[string]any) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// cachedInitResult is what Init caches via idemp.StoreResult so a replayed
// request is answered straight from the registry, without a metaStore
// round-trip.
type cachedInitResult struct {
	OwnerID     string              `json:"owner_id"`
	UploadID    string              `json:"upload_id"`
	ChunkSize   int64               `json:"chunk_size"`
	TotalChunks int                 `json:"total_chunks"`
	Status      models.UploadStatus `json:"status"`
}

// Init creates a new upload row, reserving idempotencyKey against a
// fingerprint of the init payload so a retried request replays its prior
// result instead of creating a duplicate upload.
func (s *Service) Init(ctx context.Context, ownerID string, req InitRequest, idempotencyKey string) (*InitResult, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.defaultChunkSize
	}
	checksum := normalizeChecksum(req.FileChecksumSHA256)

	fp, err := fingerprint(map[string]any{
		"file_name":            req.FileName,
		"file_size":            req.FileSize,
		"chunk_size":           chunkSize,
		"file_checksum_sha256": checksum,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "fingerprint_failed", "failed to fingerprint init request", err)
	}

	uploadID := uuid.NewString()

	if idempotencyKey != "" {
		result, ok, err := s.reserveInit(ctx, idempotencyKey, fp, uploadID, ownerID)
		if err != nil {
			return nil, err
		}
		if ok {
			return result, nil
		}
	}

	totalChunks := int(math.Ceil(float64(req.FileSize) / float64(chunkSize)))
	if req.FileSize == 0 {
		totalChunks = 0
	}

	now := time.Now().UTC()
	upload := &models.Upload{
		ID:                 uploadID,
		OwnerID:            ownerID,
		FileName:           req.FileName,
		FileSize:           req.FileSize,
		ChunkSize:          chunkSize,
		TotalChunks:        totalChunks,
		FileChecksumSHA256: checksum,
		Status:             models.UploadInitiated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	useMultipart := s.storageIsObjectBackend && totalChunks > 1 && chunkSize >= minMultipartPartSize
	if useMultipart {
		multipartID, err := s.storage.InitializeUpload(ctx, upload.ID)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindTransientStorage, "storage_init_failed", "failed to initialize upload storage", err)
		}
		upload.MultipartUploadID = multipartID
	}

	if err := s.metaStore.CreateUpload(ctx, upload); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "create_upload_failed", "failed to create upload", err)
	}

	result := &InitResult{UploadID: upload.ID, ChunkSize: upload.ChunkSize, TotalChunks: upload.TotalChunks, Status: upload.Status}

	if idempotencyKey != "" {
		s.storeInitResult(ctx, idempotencyKey, ownerID, result)
	}

	s.log.Info("upload initiated", "upload_id", upload.ID, "owner_id", ownerID, "file_size", upload.FileSize, "chunk_size", upload.ChunkSize, "total_chunks", upload.TotalChunks)

	return result, nil
}

// reserveInit atomically claims idempotencyKey for fp against uploadID. The
// bool return reports whether the caller should return immediately with
// the returned result (a replay, or a rejected conflict surfaced as an
// error); ok=false with a nil error means the reservation is fresh and the
// caller should proceed to create the upload under uploadID.
func (s *Service) reserveInit(ctx context.Context, idempotencyKey, fp, uploadID, ownerID string) (*InitResult, bool, error) {
	outcome, rec, err := s.idemp.Reserve(ctx, string(models.IdempotencyInit), idempotencyKey, fp, uploadID, 0)
	if err != nil {
		return nil, false, apperror.Wrap(apperror.KindInternal, "idempotency_reserve_failed", "failed to reserve idempotency key", err)
	}
	switch outcome {
	case idempotency.Conflict:
		return nil, false, apperror.New(apperror.KindConflict, "idempotency_conflict", "idempotency key reused with a different init payload")
	case idempotency.Replay:
		var cached cachedInitResult
		if rec.ResultJSON == "" || json.Unmarshal([]byte(rec.ResultJSON), &cached) != nil {
			return nil, false, apperror.New(apperror.KindConflict, "idempotency_pending", "a prior request with this idempotency key has not yet completed")
		}
		if cached.OwnerID != ownerID {
			return nil, false, apperror.ErrForbidden
		}
		return &InitResult{UploadID: cached.UploadID, ChunkSize: cached.ChunkSize, TotalChunks: cached.TotalChunks, Status: cached.Status}, true, nil
	default:
		return nil, false, nil
	}
}

func (s *Service) storeInitResult(ctx context.Context, idempotencyKey, ownerID string, result *InitResult) {
	payload, err := json.Marshal(cachedInitResult{OwnerID: ownerID, UploadID: result.UploadID, ChunkSize: result.ChunkSize, TotalChunks: result.TotalChunks, Status: result.Status})
	if err != nil {
		s.log.Warn("failed to marshal init idempotency result", "upload_id", result.UploadID, "error", err)
		return
	}
	if err := s.idemp.StoreResult(ctx, string(models.IdempotencyInit), idempotencyKey, string(payload)); err != nil {
		s.log.Warn("failed to store init idempotency result", "upload_id", result.UploadID, "error", err)
	}
}

// AcceptChunk writes one chunk's bytes, enforcing state, bounds, checksum,
// and idempotency the way upload_chunk does, then dispatches the write
// through admission control and reconciles chunk/upload metadata.
func (s *Service) AcceptChunk(ctx context.Context, ownerID, uploadID string, chunkIndex int, data []byte, chunkSHA256, idempotencyKey string) (*ChunkResult, error) {
	upload, err := s.ownedUpload(ctx, uploadID, ownerID)
	if err != nil {
		return nil, err
	}
	if upload.Status != models.UploadInitiated && upload.Status != models.UploadInProgress {
		return nil, apperror.New(apperror.KindConflict, "upload_not_accepting_chunks", "upload is not accepting chunks")
	}
	if chunkIndex < 0 || chunkIndex >= upload.TotalChunks {
		return nil, apperror.New(apperror.KindValidation, "chunk_index_out_of_bounds", "chunk index out of bounds")
	}
	if len(data) == 0 {
		return nil, apperror.New(apperror.KindValidation, "empty_chunk_payload", "chunk payload is empty")
	}

	sum := sha256.Sum256(data)
	chunkFingerprint := hex.EncodeToString(sum[:])
	if chunkSHA256 != "" && normalizeChecksum(chunkSHA256) != chunkFingerprint {
		return nil, apperror.New(apperror.KindChecksum, "chunk_checksum_mismatch", "chunk checksum mismatch")
	}

	if idempotencyKey != "" {
		result, ok, err := s.reserveChunk(ctx, uploadID, chunkIndex, idempotencyKey, chunkFingerprint, ownerID)
		if err != nil {
			return nil, err
		}
		if ok {
			return result, nil
		}
	}

	admission, err := s.limiter.Acquire(uploadID)
	if err != nil {
		return nil, err
	}
	defer s.limiter.Release(admission)

	result, retries, err := s.persistWithRetry(ctx, uploadID, chunkIndex, data, upload.MultipartUploadID)
	if err != nil {
		if s.m != nil {
			s.m.ChunkUploadFailuresTotal.Inc()
		}
		return nil, apperror.Wrap(apperror.KindTransientStorage, "chunk_upload_failed", "chunk upload failed", err)
	}

	now := time.Now().UTC()
	chunk := &models.Chunk{
		UploadID:            uploadID,
		ChunkIndex:          chunkIndex,
		SizeBytes:           int64(len(data)),
		ChunkChecksumSHA256: chunkFingerprint,
		StorageKey:          result.Key,
		StorageETag:         result.ETag,
		Status:              models.ChunkUploaded,
		RetryCount:          retries,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.metaStore.UpsertChunk(ctx, chunk); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "upsert_chunk_failed", "failed to record chunk", err)
	}

	if upload.Status == models.UploadInitiated {
		if err := s.metaStore.TransitionUploadStatus(ctx, uploadID, models.UploadInitiated, models.UploadInProgress); err != nil && err != store.ErrConditionFailed {
			s.log.Warn("failed to transition upload to in_progress", "upload_id", uploadID, "error", err)
		}
	}

	if idempotencyKey != "" {
		s.storeChunkResult(ctx, uploadID, chunkIndex, idempotencyKey, ownerID)
	}

	if s.m != nil {
		s.m.ChunksUploadedTotal.Inc()
		s.m.BytesUploadedTotal.Add(float64(len(data)))
	}

	return &ChunkResult{UploadID: uploadID, ChunkIndex: chunkIndex, Status: models.ChunkUploaded}, nil
}

// chunkIdempotencyKey scopes a chunk idempotency key to (upload_id,
// chunk_index), matching the composite uniqueness
// ChunkRequestIdempotency enforces in original_source.
func chunkIdempotencyKey(uploadID string, chunkIndex int, idempotencyKey string) string {
	return fmt.Sprintf("%s/%d/%s", uploadID, chunkIndex, idempotencyKey)
}

// cachedChunkResult is what AcceptChunk caches via idemp.StoreResult.
type cachedChunkResult struct {
	OwnerID string `json:"owner_id"`
}

func (s *Service) reserveChunk(ctx context.Context, uploadID string, chunkIndex int, idempotencyKey, chunkFingerprint, ownerID string) (*ChunkResult, bool, error) {
	outcome, rec, err := s.idemp.Reserve(ctx, string(models.IdempotencyChunk), chunkIdempotencyKey(uploadID, chunkIndex, idempotencyKey), chunkFingerprint, uploadID, chunkIndex)
	if err != nil {
		return nil, false, apperror.Wrap(apperror.KindInternal, "idempotency_reserve_failed", "failed to reserve idempotency key", err)
	}
	switch outcome {
	case idempotency.Conflict:
		return nil, false, apperror.New(apperror.KindConflict, "idempotency_conflict", "idempotency key reused with a different chunk payload")
	case idempotency.Replay:
		var cached cachedChunkResult
		if rec.ResultJSON == "" || json.Unmarshal([]byte(rec.ResultJSON), &cached) != nil {
			return nil, false, apperror.New(apperror.KindConflict, "idempotency_pending", "a prior request with this idempotency key has not yet completed")
		}
		if cached.OwnerID != ownerID {
			return nil, false, apperror.ErrForbidden
		}
		return &ChunkResult{UploadID: uploadID, ChunkIndex: chunkIndex, Status: models.ChunkUploaded}, true, nil
	default:
		return nil, false, nil
	}
}

func (s *Service) storeChunkResult(ctx context.Context, uploadID string, chunkIndex int, idempotencyKey, ownerID string) {
	payload, err := json.Marshal(cachedChunkResult{OwnerID: ownerID})
	if err != nil {
		s.log.Warn("failed to marshal chunk idempotency result", "upload_id", uploadID, "chunk_index", chunkIndex, "error", err)
		return
	}
	key := chunkIdempotencyKey(uploadID, chunkIndex, idempotencyKey)
	if err := s.idemp.StoreResult(ctx, string(models.IdempotencyChunk), key, string(payload)); err != nil {
		s.log.Warn("failed to store chunk idempotency result", "upload_id", uploadID, "chunk_index", chunkIndex, "error", err)
	}
}

func (s *Service) persistWithRetry(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, int, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result, err := s.dispatch.Dispatch(ctx, uploadID, chunkIndex, data, multipartUploadID)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if s.m != nil {
			s.m.RetriesTotal.Inc()
		}
	}
	return storage.WriteResult{}, s.maxRetries, lastErr
}

// Complete finalizes an upload: verifies every chunk index is UPLOADED,
// optionally re-hashes the assembled file against the declared checksum,
// commits the multipart session if one is open, and CASes the upload to
// COMPLETED. Idempotency replay matches complete_upload's three-way
// handling of a reused key, a prior COMPLETED state, and a fresh commit.
func (s *Service) Complete(ctx context.Context, ownerID, uploadID, idempotencyKey string) (*CompleteResult, error) {
	fp, err := fingerprint(map[string]any{"upload_id": uploadID})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "fingerprint_failed", "failed to fingerprint complete request", err)
	}

	upload, err := s.ownedUpload(ctx, uploadID, ownerID)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		result, ok, err := s.reserveComplete(ctx, uploadID, idempotencyKey, fp, ownerID)
		if err != nil {
			return nil, err
		}
		if ok {
			return result, nil
		}
	}

	if upload.Status == models.UploadInitiated && upload.TotalChunks > 0 {
		return nil, apperror.New(apperror.KindConflict, "cannot_complete_from_initiated", "cannot complete upload from INITIATED state")
	}
	if upload.Status == models.UploadCompleted {
		result := &CompleteResult{UploadID: upload.ID, Status: upload.Status}
		if idempotencyKey != "" {
			s.storeCompleteResult(ctx, uploadID, idempotencyKey, ownerID, result)
		}
		return result, nil
	}
	zeroChunkInitiated := upload.Status == models.UploadInitiated && upload.TotalChunks == 0
	if upload.Status != models.UploadInProgress && !zeroChunkInitiated {
		return nil, apperror.ErrUploadTerminal
	}

	uploadedCount, err := s.metaStore.CountUploadedChunks(ctx, uploadID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "count_chunks_failed", "failed to count uploaded chunks", err)
	}
	if uploadedCount != upload.TotalChunks {
		return nil, apperror.ErrMissingChunks
	}

	chunks, err := s.metaStore.ListChunks(ctx, uploadID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "list_chunks_failed", "failed to list chunks", err)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })

	if upload.FileChecksumSHA256 != "" {
		if err := s.verifyFileChecksum(ctx, chunks, upload.FileChecksumSHA256); err != nil {
			_ = s.metaStore.SetUploadFailureReason(ctx, uploadID, err.Error())
			_ = s.metaStore.TransitionUploadStatus(ctx, uploadID, upload.Status, models.UploadFailed)
			return nil, apperror.New(apperror.KindConflict, "file_checksum_mismatch", "file checksum mismatch")
		}
	}

	if upload.MultipartUploadID != "" {
		parts := make([]storage.Part, 0, len(chunks))
		for _, c := range chunks {
			if c.StorageETag == "" {
				return nil, apperror.New(apperror.KindConflict, "missing_part_etag", "cannot complete upload, missing storage part etag")
			}
			parts = append(parts, storage.Part{PartNumber: int32(c.ChunkIndex + 1), ETag: c.StorageETag})
		}
		if err := s.storage.FinalizeUpload(ctx, uploadID, upload.MultipartUploadID, parts); err != nil {
			return nil, apperror.Wrap(apperror.KindTransientStorage, "finalize_upload_failed", "failed to complete multipart upload", err)
		}
	} else {
		if err := s.storage.FinalizeUpload(ctx, uploadID, "", nil); err != nil {
			return nil, apperror.Wrap(apperror.KindTransientStorage, "finalize_upload_failed", "failed to assemble upload", err)
		}
	}

	if err := s.metaStore.TransitionUploadStatus(ctx, uploadID, upload.Status, models.UploadCompleted); err != nil {
		return nil, apperror.Wrap(apperror.KindConflict, "complete_transition_failed", "failed to transition upload to completed", err)
	}

	result := &CompleteResult{UploadID: uploadID, Status: models.UploadCompleted}
	if idempotencyKey != "" {
		s.storeCompleteResult(ctx, uploadID, idempotencyKey, ownerID, result)
	}

	s.log.Info("upload completed", "upload_id", uploadID, "owner_id", ownerID)
	return result, nil
}

// cachedCompleteResult is what Complete caches via idemp.StoreResult.
type cachedCompleteResult struct {
	OwnerID string              `json:"owner_id"`
	Status  models.UploadStatus `json:"status"`
}

func (s *Service) reserveComplete(ctx context.Context, uploadID, idempotencyKey, fp, ownerID string) (*CompleteResult, bool, error) {
	outcome, rec, err := s.idemp.Reserve(ctx, string(models.IdempotencyComplete), idempotencyKey, fp, uploadID, 0)
	if err != nil {
		return nil, false, apperror.Wrap(apperror.KindInternal, "idempotency_reserve_failed", "failed to reserve idempotency key", err)
	}
	switch outcome {
	case idempotency.Conflict:
		return nil, false, apperror.New(apperror.KindConflict, "idempotency_conflict", "idempotency key reused with a different complete payload")
	case idempotency.Replay:
		var cached cachedCompleteResult
		if rec.ResultJSON == "" || json.Unmarshal([]byte(rec.ResultJSON), &cached) != nil {
			return nil, false, apperror.New(apperror.KindConflict, "idempotency_pending", "a prior request with this idempotency key has not yet completed")
		}
		if cached.OwnerID != ownerID {
			return nil, false, apperror.ErrForbidden
		}
		return &CompleteResult{UploadID: uploadID, Status: cached.Status}, true, nil
	default:
		return nil, false, nil
	}
}

func (s *Service) storeCompleteResult(ctx context.Context, uploadID, idempotencyKey, ownerID string, result *CompleteResult) {
	payload, err := json.Marshal(cachedCompleteResult{OwnerID: ownerID, Status: result.Status})
	if err != nil {
		s.log.Warn("failed to marshal complete idempotency result", "upload_id", uploadID, "error", err)
		return
	}
	if err := s.idemp.StoreResult(ctx, string(models.IdempotencyComplete), idempotencyKey, string(payload)); err != nil {
		s.log.Warn("failed to store complete idempotency result", "upload_id", uploadID, "error", err)
	}
}

func (s *Service) verifyFileChecksum(ctx context.Context, chunks []*models.Chunk, want string) error {
	h := sha256.New()
	for _, c := range chunks {
		data, err := s.storage.ReadChunk(ctx, c.StorageKey)
		if err != nil {
			return fmt.Errorf("read chunk %d for checksum: %w", c.ChunkIndex, err)
		}
		h.Write(data)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return fmt.Errorf("file checksum mismatch: want %s got %s", want, got)
	}
	return nil
}

// MissingChunks reports which 0-based indexes have not yet reached
// UPLOADED, the Go analogue of the missing_chunks route.
func (s *Service) MissingChunks(ctx context.Context, ownerID, uploadID string) (*MissingResult, error) {
	upload, err := s.ownedUpload(ctx, uploadID, ownerID)
	if err != nil {
		return nil, err
	}
	missing, err := s.metaStore.MissingChunkIndexes(ctx, uploadID, upload.TotalChunks)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "missing_chunks_failed", "failed to compute missing chunks", err)
	}
	return &MissingResult{UploadID: uploadID, MissingChunkIndexes: missing, Status: upload.Status}, nil
}

// Abort transitions a non-terminal upload to ABORTED and best-effort
// deletes its chunk blobs, the synchronous counterpart of maintenance's
// stale-upload sweep applied on demand. original_source has no explicit
// abort route; this is a supplemented operation reaching ABORTED, one of
// the terminal states of models.UploadStatus.
func (s *Service) Abort(ctx context.Context, ownerID, uploadID string) error {
	upload, err := s.ownedUpload(ctx, uploadID, ownerID)
	if err != nil {
		return err
	}
	if upload.Status.IsTerminal() {
		return apperror.ErrUploadTerminal
	}

	if err := s.metaStore.TransitionUploadStatus(ctx, uploadID, upload.Status, models.UploadAborted); err != nil {
		return apperror.Wrap(apperror.KindConflict, "abort_transition_failed", "failed to abort upload", err)
	}

	if err := s.storage.DeletePrefix(ctx, "uploads/"+uploadID+"/"); err != nil {
		s.log.Warn("failed to delete chunk blobs after abort", "upload_id", uploadID, "error", err)
	}

	s.log.Info("upload aborted", "upload_id", uploadID, "owner_id", ownerID)
	return nil
}

func (s *Service) ownedUpload(ctx context.Context, uploadID, ownerID string) (*models.Upload, error) {
	upload, err := s.metaStore.GetUpload(ctx, uploadID)
	if err == store.ErrNotFound {
		return nil, apperror.ErrUploadNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "get_upload_failed", "failed to load upload", err)
	}
	if upload.OwnerID != ownerID {
		return nil, apperror.ErrForbidden
	}
	return upload, nil
}

func normalizeChecksum(s string) string { return strings.ToLower(s) }
