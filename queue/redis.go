package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements DurableQueue atop a Redis list via RPUSH/BLPOP,
// the Go analogue of original_source's RedisDurableQueue.
type RedisQueue struct {
	client    *redis.Client
	queueName string
}

func NewRedisQueue(client *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{client: client, queueName: queueName}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task ChunkWriteTask) error {
	payload, err := task.ToJSON()
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.queueName, payload).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	if timeout < time.Second {
		timeout = time.Second
	}

	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	task, err := ChunkWriteTaskFromJSON(result[1])
	if err != nil {
		return nil, err
	}
	return &Message{Receipt: task.TaskID, Task: task}, nil
}

// Ack is a no-op: BLPOP already removed the element, matching
// original_source's RedisDurableQueue.ack.
func (q *RedisQueue) Ack(ctx context.Context, receipt string) error { return nil }
