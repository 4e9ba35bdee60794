package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halvardsen/chunkvault/queue"
	"github.com/halvardsen/chunkvault/storage"
)

// InlineDispatcher submits a chunk-write task to a local Pool and blocks
// until it completes, used when no external durable queue is configured.
// The direct analogue of main.py's executor.submit(...).result() branch in
// upload_chunk.
type InlineDispatcher struct {
	pool    *Pool
	persist Persister
}

func NewInlineDispatcher(pool *Pool, persist Persister) *InlineDispatcher {
	return &InlineDispatcher{pool: pool, persist: persist}
}

// Dispatch submits one attempt to the pool and waits for its single
// completion send. Retrying a failed attempt is the caller's
// responsibility (upload.Service.persistWithRetry re-invokes Dispatch,
// each call submitting a fresh Task with its own completion channel, so
// Pool.execute never needs to retry task.Run itself).
func (d *InlineDispatcher) Dispatch(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, error) {
	done := make(chan struct {
		result storage.WriteResult
		err    error
	}, 1)

	d.pool.Submit(Task{
		TaskID:   uuid.NewString(),
		UploadID: uploadID,
		Run: func(taskCtx context.Context) error {
			result, err := d.persist(taskCtx, uploadID, chunkIndex, data, multipartUploadID)
			done <- struct {
				result storage.WriteResult
				err    error
			}{result, err}
			return err
		},
	})

	select {
	case outcome := <-done:
		return outcome.result, outcome.err
	case <-ctx.Done():
		return storage.WriteResult{}, ctx.Err()
	}
}

// DurableQueueDispatcher enqueues a chunk-write task to an external durable
// queue and blocks on a queue.ResultStore for the outcome, the analogue of
// main.py's _persist_chunk_via_durable_queue.
type DurableQueueDispatcher struct {
	q           queue.DurableQueue
	results     *queue.ResultStore
	taskTimeout time.Duration
}

func NewDurableQueueDispatcher(q queue.DurableQueue, results *queue.ResultStore, taskTimeout time.Duration) *DurableQueueDispatcher {
	return &DurableQueueDispatcher{q: q, results: results, taskTimeout: taskTimeout}
}

func (d *DurableQueueDispatcher) Dispatch(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, error) {
	task := queue.NewChunkWriteTask(uploadID, chunkIndex, data, multipartUploadID)
	if err := d.q.Enqueue(ctx, task); err != nil {
		return storage.WriteResult{}, fmt.Errorf("enqueue chunk task: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.taskTimeout)
	defer cancel()

	key, etag, err := d.results.Wait(waitCtx, task.TaskID)
	if err != nil {
		return storage.WriteResult{}, err
	}
	return storage.WriteResult{Key: key, ETag: etag}, nil
}
