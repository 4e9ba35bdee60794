package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/halvardsen/chunkvault/download"
	"github.com/halvardsen/chunkvault/internal/apperror"
	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/maintenance"
	"github.com/halvardsen/chunkvault/upload"
)

// Handlers wires upload.Service, download.Assembler, and
// maintenance.Sweeper to HTTP, grounded route-for-route on
// original_source/app/main.py's endpoint bodies.
type Handlers struct {
	upload      *upload.Service
	download    *download.Assembler
	maintenance *maintenance.Sweeper
	appVersion  string
	log         logging.Logger
}

func NewHandlers(uploadSvc *upload.Service, downloadSvc *download.Assembler, sweeper *maintenance.Sweeper, appVersion string, log logging.Logger) *Handlers {
	return &Handlers{upload: uploadSvc, download: downloadSvc, maintenance: sweeper, appVersion: appVersion, log: log}
}

type initUploadRequest struct {
	FileName           string `json:"file_name"`
	FileSize           int64  `json:"file_size"`
	ChunkSize          int64  `json:"chunk_size,omitempty"`
	FileChecksumSHA256 string `json:"file_checksum_sha256,omitempty"`
}

type initUploadResponse struct {
	UploadID    string `json:"upload_id"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`
	Status      string `json:"status"`
}

// InitUpload handles POST /v1/uploads/init.
func (h *Handlers) InitUpload(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	var req initUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperror.New(apperror.KindValidation, "bad_request", "malformed request body"))
		return
	}
	if req.FileName == "" || req.FileSize < 0 {
		writeError(w, r, apperror.New(apperror.KindValidation, "bad_request", "file_name is required and file_size must not be negative"))
		return
	}

	result, err := h.upload.Init(r.Context(), user.UserID, upload.InitRequest{
		FileName:           req.FileName,
		FileSize:           req.FileSize,
		ChunkSize:          req.ChunkSize,
		FileChecksumSHA256: req.FileChecksumSHA256,
	}, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, initUploadResponse{
		UploadID:    result.UploadID,
		ChunkSize:   result.ChunkSize,
		TotalChunks: result.TotalChunks,
		Status:      string(result.Status),
	})
}

type uploadChunkResponse struct {
	UploadID   string `json:"upload_id"`
	ChunkIndex int    `json:"chunk_index"`
	Status     string `json:"status"`
}

// UploadChunk handles PUT /v1/uploads/{uploadID}/chunks/{chunkIndex}.
func (h *Handlers) UploadChunk(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	uploadID := chi.URLParam(r, "uploadID")

	chunkIndex, err := strconv.Atoi(chi.URLParam(r, "chunkIndex"))
	if err != nil {
		writeError(w, r, apperror.New(apperror.KindValidation, "bad_request", "chunk index must be an integer"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, apperror.New(apperror.KindValidation, "bad_request", "failed to read chunk body"))
		return
	}
	if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
		if n, err := strconv.Atoi(contentLength); err == nil && n != len(body) {
			writeError(w, r, apperror.New(apperror.KindValidation, "bad_request", "content-length mismatch"))
			return
		}
	}

	result, err := h.upload.AcceptChunk(r.Context(), user.UserID, uploadID, chunkIndex, body, r.Header.Get("X-Chunk-SHA256"), r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, uploadChunkResponse{UploadID: result.UploadID, ChunkIndex: result.ChunkIndex, Status: string(result.Status)})
}

type completeUploadResponse struct {
	UploadID string `json:"upload_id"`
	Status   string `json:"status"`
}

// CompleteUpload handles POST /v1/uploads/{uploadID}/complete.
func (h *Handlers) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	uploadID := chi.URLParam(r, "uploadID")

	result, err := h.upload.Complete(r.Context(), user.UserID, uploadID, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, completeUploadResponse{UploadID: result.UploadID, Status: string(result.Status)})
}

type missingChunksResponse struct {
	UploadID            string `json:"upload_id"`
	MissingChunkIndexes []int  `json:"missing_chunk_indexes"`
	Status              string `json:"status"`
}

// MissingChunks handles GET /v1/uploads/{uploadID}/missing-chunks.
func (h *Handlers) MissingChunks(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	uploadID := chi.URLParam(r, "uploadID")

	result, err := h.upload.MissingChunks(r.Context(), user.UserID, uploadID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	indexes := result.MissingChunkIndexes
	if indexes == nil {
		indexes = []int{}
	}
	render.JSON(w, r, missingChunksResponse{UploadID: result.UploadID, MissingChunkIndexes: indexes, Status: string(result.Status)})
}

// AbortUpload handles POST /v1/uploads/{uploadID}/abort, a supplemented
// operation reaching the ABORTED terminal state (models.UploadAborted)
// that original_source exposes no direct route for.
func (h *Handlers) AbortUpload(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	uploadID := chi.URLParam(r, "uploadID")

	if err := h.upload.Abort(r.Context(), user.UserID, uploadID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET /v1/uploads/{uploadID}/download.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	uploadID := chi.URLParam(r, "uploadID")

	result, err := h.download.Stream(r.Context(), user.UserID, uploadID, r.Header.Get("Range"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer result.Body.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(result.ContentLen, 10))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")

	if result.Partial {
		w.Header().Set("Content-Range", download.ContentRangeHeader(result.Range, result.TotalSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if _, err := io.Copy(w, result.Body); err != nil {
		h.log.Warn("download stream write failed", "upload_id", uploadID, "error", err)
	}
}

// RunCleanup handles POST /v1/admin/cleanup (admin-only), invoking the
// same logic the periodic maintenance ticker runs.
func (h *Handlers) RunCleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.maintenance.Run(r.Context())
	if err != nil {
		writeError(w, r, apperror.Wrap(apperror.KindInternal, "cleanup_failed", "cleanup run failed", err))
		return
	}
	render.JSON(w, r, map[string]int{
		"stale_uploads_aborted":    result.StaleUploadsAborted,
		"idempotency_rows_deleted": result.IdempotencyRowsDeleted,
		"storage_keys_deleted":     result.StorageKeysDeleted,
	})
}

// Health handles GET /health.
func (h *Handlers) Health(aggregatorReady func() (bool, map[string]string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready, detail := aggregatorReady()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		render.Status(r, status)
		render.JSON(w, r, map[string]any{"status": readyLabel(ready), "checks": detail})
	}
}

func readyLabel(ready bool) string {
	if ready {
		return "ok"
	}
	return "not_ready"
}

// Version handles GET /version.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": h.appVersion})
}
