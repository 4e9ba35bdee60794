package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvardsen/chunkvault/download"
	"github.com/halvardsen/chunkvault/idempotency"
	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/limiter"
	"github.com/halvardsen/chunkvault/maintenance"
	"github.com/halvardsen/chunkvault/models"
	"github.com/halvardsen/chunkvault/storage"
	"github.com/halvardsen/chunkvault/store"
	"github.com/halvardsen/chunkvault/upload"
)

type testMetaStore struct {
	mu      sync.Mutex
	uploads map[string]*models.Upload
	chunks  map[string]map[int]*models.Chunk
}

func newTestMetaStore() *testMetaStore {
	return &testMetaStore{uploads: map[string]*models.Upload{}, chunks: map[string]map[int]*models.Chunk{}}
}

func (f *testMetaStore) Name() string                     { return "fake" }
func (f *testMetaStore) IsReady(ctx context.Context) error { return nil }

func (f *testMetaStore) CreateUpload(ctx context.Context, u *models.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.uploads[u.ID] = &cp
	return nil
}

func (f *testMetaStore) GetUpload(ctx context.Context, uploadID string) (*models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[uploadID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *testMetaStore) TransitionUploadStatus(ctx context.Context, uploadID string, from, to models.UploadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[uploadID]
	if !ok {
		return store.ErrNotFound
	}
	if u.Status != from {
		return store.ErrConditionFailed
	}
	u.Status = to
	return nil
}

func (f *testMetaStore) SetUploadFailureReason(ctx context.Context, uploadID, reason string) error { return nil }

func (f *testMetaStore) DeleteUpload(ctx context.Context, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, uploadID)
	delete(f.chunks, uploadID)
	return nil
}

func (f *testMetaStore) ListStaleUploads(ctx context.Context, olderThan time.Time) ([]*models.Upload, error) {
	return nil, nil
}

func (f *testMetaStore) UpsertChunk(ctx context.Context, chunk *models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunks[chunk.UploadID] == nil {
		f.chunks[chunk.UploadID] = map[int]*models.Chunk{}
	}
	cp := *chunk
	f.chunks[chunk.UploadID][chunk.ChunkIndex] = &cp
	return nil
}

func (f *testMetaStore) GetChunk(ctx context.Context, uploadID string, chunkIndex int) (*models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chunks[uploadID][chunkIndex]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *testMetaStore) ListChunks(ctx context.Context, uploadID string) ([]*models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Chunk
	for _, c := range f.chunks[uploadID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *testMetaStore) CountUploadedChunks(ctx context.Context, uploadID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks[uploadID] {
		if c.Status == models.ChunkUploaded {
			n++
		}
	}
	return n, nil
}

func (f *testMetaStore) MissingChunkIndexes(ctx context.Context, uploadID string, totalChunks int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	have := map[int]struct{}{}
	for idx, c := range f.chunks[uploadID] {
		if c.Status == models.ChunkUploaded {
			have[idx] = struct{}{}
		}
	}
	var missing []int
	for i := 0; i < totalChunks; i++ {
		if _, ok := have[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

type testStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newTestStorage() *testStorage { return &testStorage{data: map[string][]byte{}} }

func (f *testStorage) InitializeUpload(ctx context.Context, uploadID string) (string, error) { return "", nil }
func (f *testStorage) ChunkKey(uploadID string, chunkIndex int) string                        { return uploadID + "/c" }

func (f *testStorage) WriteChunk(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.ChunkKey(uploadID, chunkIndex)
	cp := make([]byte, len(data))
	copy(cp, data)
	f.data[key] = cp
	return storage.WriteResult{Key: key}, nil
}

func (f *testStorage) ReadChunk(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *testStorage) OpenChunk(ctx context.Context, key string) (io.ReadCloser, error) { return nil, nil }

func (f *testStorage) ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f.mu.Lock()
	data := f.data[key]
	f.mu.Unlock()
	if int(offset+length) > len(data) {
		length = int64(len(data)) - offset
	}
	return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
}

func (f *testStorage) FinalizeUpload(ctx context.Context, uploadID string, multipartUploadID string, parts []storage.Part) error {
	return nil
}

func (f *testStorage) AssembledKey(uploadID string) string { return uploadID + "/c" }
func (f *testStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (f *testStorage) DeleteKey(ctx context.Context, key string) error                { return nil }
func (f *testStorage) DeletePrefix(ctx context.Context, prefix string) error          { return nil }

type testDispatcher struct{ storage storage.ChunkStorage }

func (d testDispatcher) Dispatch(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, error) {
	return d.storage.WriteChunk(ctx, uploadID, chunkIndex, data, multipartUploadID)
}

func newTestHandlers() (*Handlers, *testMetaStore, *testStorage) {
	meta := newTestMetaStore()
	stor := newTestStorage()
	idemp := idempotency.NewMemoryRegistry()
	admission := limiter.NewAdmissionController(100, 100, 100, 100, 0, nil)
	uploadSvc := upload.NewService(meta, stor, idemp, admission, testDispatcher{storage: stor}, 4, 1<<30, false, 2, logging.Noop(), nil)
	downloadSvc := download.NewAssembler(meta, stor)
	sweeper := maintenance.NewSweeper(meta, stor, idemp, time.Hour, time.Hour, false, logging.Noop(), nil)
	return NewHandlers(uploadSvc, downloadSvc, sweeper, "test-version", logging.Noop()), meta, stor
}

func newTestRouter(h *Handlers) http.Handler {
	auth := NewAuthenticator("api_key", map[string]string{"test-key": "owner-1"}, map[string]struct{}{}, "", "", "", "")

	r := chi.NewRouter()
	r.Get("/health", h.Health(func() (bool, map[string]string) { return true, nil }))
	r.Get("/version", h.Version)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Post("/v1/uploads/init", h.InitUpload)
		r.Put("/v1/uploads/{uploadID}/chunks/{chunkIndex}", h.UploadChunk)
		r.Post("/v1/uploads/{uploadID}/complete", h.CompleteUpload)
		r.Get("/v1/uploads/{uploadID}/missing-chunks", h.MissingChunks)
		r.Post("/v1/uploads/{uploadID}/abort", h.AbortUpload)
		r.Get("/v1/uploads/{uploadID}/download", h.Download)
		r.With(RequireAdmin).Post("/v1/admin/cleanup", h.RunCleanup)
	})
	return r
}

func TestInitUpload_CreatesUploadAndReturns201(t *testing.T) {
	h, _, _ := newTestHandlers()
	router := newTestRouter(h)

	body, _ := json.Marshal(map[string]any{"file_name": "a.bin", "file_size": 8, "chunk_size": 4})
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads/init", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp initUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalChunks)
	assert.NotEmpty(t, resp.UploadID)
}

func TestInitUpload_RejectsMissingFileName(t *testing.T) {
	h, _, _ := newTestHandlers()
	router := newTestRouter(h)

	body, _ := json.Marshal(map[string]any{"file_size": 8})
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads/init", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadChunkThenComplete_FullFlow(t *testing.T) {
	h, _, _ := newTestHandlers()
	router := newTestRouter(h)

	initBody, _ := json.Marshal(map[string]any{"file_name": "a.bin", "file_size": 4, "chunk_size": 4})
	initReq := httptest.NewRequest(http.MethodPost, "/v1/uploads/init", bytes.NewReader(initBody))
	initReq.Header.Set("X-API-Key", "test-key")
	initRec := httptest.NewRecorder()
	router.ServeHTTP(initRec, initReq)
	require.Equal(t, http.StatusCreated, initRec.Code)

	var initResp initUploadResponse
	require.NoError(t, json.Unmarshal(initRec.Body.Bytes(), &initResp))

	chunkReq := httptest.NewRequest(http.MethodPut, "/v1/uploads/"+initResp.UploadID+"/chunks/0", bytes.NewReader([]byte("abcd")))
	chunkReq.Header.Set("X-API-Key", "test-key")
	chunkRec := httptest.NewRecorder()
	router.ServeHTTP(chunkRec, chunkReq)
	require.Equal(t, http.StatusAccepted, chunkRec.Code)

	completeReq := httptest.NewRequest(http.MethodPost, "/v1/uploads/"+initResp.UploadID+"/complete", nil)
	completeReq.Header.Set("X-API-Key", "test-key")
	completeRec := httptest.NewRecorder()
	router.ServeHTTP(completeRec, completeReq)
	require.Equal(t, http.StatusOK, completeRec.Code)

	var completeResp completeUploadResponse
	require.NoError(t, json.Unmarshal(completeRec.Body.Bytes(), &completeResp))
	assert.Equal(t, "COMPLETED", completeResp.Status)
}

func TestMissingChunks_ReturnsUnfilledIndexes(t *testing.T) {
	h, meta, _ := newTestHandlers()
	router := newTestRouter(h)

	now := time.Now().UTC()
	meta.uploads["u1"] = &models.Upload{ID: "u1", OwnerID: "owner-1", TotalChunks: 3, Status: models.UploadInProgress, CreatedAt: now, UpdatedAt: now}
	meta.chunks["u1"] = map[int]*models.Chunk{1: {UploadID: "u1", ChunkIndex: 1, Status: models.ChunkUploaded}}

	req := httptest.NewRequest(http.MethodGet, "/v1/uploads/u1/missing-chunks", nil)
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp missingChunksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []int{0, 2}, resp.MissingChunkIndexes)
}

func TestAbortUpload_ReturnsNoContentThenRejectsSecondAbort(t *testing.T) {
	h, meta, _ := newTestHandlers()
	router := newTestRouter(h)

	now := time.Now().UTC()
	meta.uploads["u1"] = &models.Upload{ID: "u1", OwnerID: "owner-1", Status: models.UploadInitiated, CreatedAt: now, UpdatedAt: now}

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads/u1/abort", nil)
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/uploads/u1/abort", nil)
	req2.Header.Set("X-API-Key", "test-key")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestUploadChunk_RejectsAnotherOwnersUpload(t *testing.T) {
	h, meta, _ := newTestHandlers()
	router := newTestRouter(h)

	now := time.Now().UTC()
	meta.uploads["u1"] = &models.Upload{ID: "u1", OwnerID: "someone-else", TotalChunks: 1, ChunkSize: 4, Status: models.UploadInitiated, CreatedAt: now, UpdatedAt: now}

	req := httptest.NewRequest(http.MethodPut, "/v1/uploads/u1/chunks/0", bytes.NewReader([]byte("abcd")))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRunCleanup_RequiresAdmin(t *testing.T) {
	h, _, _ := newTestHandlers()
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cleanup", nil)
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthAndVersion(t *testing.T) {
	h, _, _ := newTestHandlers()
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "test-version")
}
