package worker

import (
	"context"
	"time"

	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/queue"
	"github.com/halvardsen/chunkvault/storage"
)

// Persister writes one chunk's bytes to the storage backend. The
// composition root supplies a closure over storage.ChunkStorage, matching
// original_source's module-level _persist_chunk function.
type Persister func(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (storage.WriteResult, error)

// Consumer drains a queue.DurableQueue and persists each task, posting the
// outcome to a queue.ResultStore so a blocked HTTP handler can resume. The
// Go analogue of main.py's _durable_queue_consumer_loop /
// _process_queue_message pair.
type Consumer struct {
	id          int
	q           queue.DurableQueue
	results     *queue.ResultStore
	persist     Persister
	pollTimeout time.Duration
	log         logging.Logger
}

func NewConsumer(id int, q queue.DurableQueue, results *queue.ResultStore, persist Persister, pollTimeout time.Duration, log logging.Logger) *Consumer {
	return &Consumer{id: id, q: q, results: results, persist: persist, pollTimeout: pollTimeout, log: log}
}

// Run blocks, polling the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := c.q.Dequeue(ctx, c.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("queue consumer error", "consumer_id", c.id, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if msg == nil {
			continue
		}

		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg *queue.Message) {
	data, err := msg.Task.Data()
	if err == nil {
		var result storage.WriteResult
		result, err = c.persist(ctx, msg.Task.UploadID, msg.Task.ChunkIndex, data, msg.Task.MultipartUploadID)
		if err == nil {
			c.results.SetSuccess(msg.Task.TaskID, result.Key, result.ETag)
		}
	}

	if err != nil {
		c.results.SetError(msg.Task.TaskID, err.Error())
	}

	if ackErr := c.q.Ack(ctx, msg.Receipt); ackErr != nil {
		c.log.Warn("queue ack failed", "consumer_id", c.id, "task_id", msg.Task.TaskID, "error", ackErr)
	}
}
