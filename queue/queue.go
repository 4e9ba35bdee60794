// Package queue implements chunkvault's durable chunk-write task queue
// (memory / Redis list / SQS backends) and the synchronous completion-
// signal registry that lets an HTTP handler block on a task executed by an
// out-of-process consumer. Grounded on original_source/app/durable_queue.py
// (ChunkWriteTask, DurableQueue, ChunkResultStore) and, for the SQS backend,
// the teacher's queues/uploads_notifications.go long-poll/ack loop.
package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChunkWriteTask is one chunk persistence job, the Go analogue of
// original_source's ChunkWriteTask dataclass. Data is carried base64-
// encoded so the task survives a JSON-text queue transport (Redis list,
// SQS message body) unmodified.
type ChunkWriteTask struct {
	TaskID             string `json:"task_id"`
	UploadID           string `json:"upload_id"`
	ChunkIndex         int    `json:"chunk_index"`
	MultipartUploadID  string `json:"multipart_upload_id,omitempty"`
	DataB64            string `json:"data_b64"`
}

func NewChunkWriteTask(uploadID string, chunkIndex int, data []byte, multipartUploadID string) ChunkWriteTask {
	return ChunkWriteTask{
		TaskID:            uuid.NewString(),
		UploadID:          uploadID,
		ChunkIndex:        chunkIndex,
		MultipartUploadID: multipartUploadID,
		DataB64:           base64.StdEncoding.EncodeToString(data),
	}
}

func (t ChunkWriteTask) Data() ([]byte, error) {
	return base64.StdEncoding.DecodeString(t.DataB64)
}

func (t ChunkWriteTask) ToJSON() (string, error) {
	b, err := json.Marshal(t)
	return string(b), err
}

func ChunkWriteTaskFromJSON(payload string) (ChunkWriteTask, error) {
	var t ChunkWriteTask
	err := json.Unmarshal([]byte(payload), &t)
	return t, err
}

// Message wraps a dequeued task with an opaque receipt used to Ack it,
// equivalent to original_source's QueueMessage.
type Message struct {
	Receipt string
	Task    ChunkWriteTask
}

// DurableQueue is chunkvault's chunk-task queue contract.
type DurableQueue interface {
	Enqueue(ctx context.Context, task ChunkWriteTask) error
	// Dequeue blocks up to timeout for a message, returning nil if none
	// arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Message, error)
	Ack(ctx context.Context, receipt string) error
}

// ResultStore is the synchronous completion-signal registry an HTTP
// handler waits on after enqueuing a task to an external queue backend,
// the Go analogue of original_source's ChunkResultStore.
type ResultStore struct {
	mu      sync.Mutex
	results map[string]taskOutcome
	waiters map[string]chan struct{}
}

type taskOutcome struct {
	success bool
	key     string
	etag    string
	errMsg  string
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		results: map[string]taskOutcome{},
		waiters: map[string]chan struct{}{},
	}
}

func (r *ResultStore) SetSuccess(taskID, key, etag string) {
	r.complete(taskID, taskOutcome{success: true, key: key, etag: etag})
}

func (r *ResultStore) SetError(taskID, errMsg string) {
	r.complete(taskID, taskOutcome{success: false, errMsg: errMsg})
}

func (r *ResultStore) complete(taskID string, outcome taskOutcome) {
	r.mu.Lock()
	r.results[taskID] = outcome
	ch, ok := r.waiters[taskID]
	r.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Wait blocks until taskID's outcome is posted or ctx is done, returning
// (key, etag, nil) on success or a non-nil error otherwise (either the
// task's reported failure or ctx.Err() on timeout).
func (r *ResultStore) Wait(ctx context.Context, taskID string) (key, etag string, err error) {
	r.mu.Lock()
	if outcome, ok := r.results[taskID]; ok {
		delete(r.results, taskID)
		r.mu.Unlock()
		return r.resolve(outcome)
	}

	ch := make(chan struct{})
	r.waiters[taskID] = ch
	r.mu.Unlock()

	select {
	case <-ch:
		r.mu.Lock()
		outcome := r.results[taskID]
		delete(r.results, taskID)
		delete(r.waiters, taskID)
		r.mu.Unlock()
		return r.resolve(outcome)
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.waiters, taskID)
		r.mu.Unlock()
		return "", "", ctx.Err()
	}
}

func (r *ResultStore) resolve(outcome taskOutcome) (string, string, error) {
	if !outcome.success {
		return "", "", &TaskError{Message: outcome.errMsg}
	}
	return outcome.key, outcome.etag, nil
}

// TaskError wraps the error string an asynchronous consumer reported for a
// failed task.
type TaskError struct{ Message string }

func (e *TaskError) Error() string { return e.Message }
