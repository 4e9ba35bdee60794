package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSQueue implements DurableQueue over Amazon SQS, grounded on the
// teacher's queues/uploads_notifications.go ReceiveMessage long-poll /
// DeleteMessage pattern, adapted from its fixed 20s/30s poll/visibility
// constants to the configurable ones in original_source's SQSDurableQueue.
type SQSQueue struct {
	client             *sqs.Client
	queueURL           string
	visibilityTimeout  int32
}

func NewSQSQueue(client *sqs.Client, queueURL string, visibilityTimeoutSeconds int32) *SQSQueue {
	if visibilityTimeoutSeconds < 30 {
		visibilityTimeoutSeconds = 30
	}
	return &SQSQueue{client: client, queueURL: queueURL, visibilityTimeout: visibilityTimeoutSeconds}
}

func (q *SQSQueue) Enqueue(ctx context.Context, task ChunkWriteTask) error {
	payload, err := task.ToJSON()
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(payload),
	})
	return err
}

func (q *SQSQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	waitSeconds := int32(timeout.Seconds())
	if waitSeconds < 1 {
		waitSeconds = 1
	}
	if waitSeconds > 20 {
		waitSeconds = 20
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages:  1,
		WaitTimeSeconds:      waitSeconds,
		VisibilityTimeout:    q.visibilityTimeout,
	})
	if err != nil {
		return nil, err
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]
	if msg.Body == nil {
		return nil, fmt.Errorf("sqs message has no body")
	}

	task, err := ChunkWriteTaskFromJSON(*msg.Body)
	if err != nil {
		return nil, err
	}
	return &Message{Receipt: aws.ToString(msg.ReceiptHandle), Task: task}, nil
}

func (q *SQSQueue) Ack(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	return err
}
