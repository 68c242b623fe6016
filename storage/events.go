package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/Adarsh9315/task-palette-organize/board"
)

// EventQueue forwards mutation settlements to an Azure storage queue so
// downstream consumers can follow board changes.
type EventQueue struct {
	queue *azqueue.QueueClient
}

// NewEventQueue creates an EventQueue for the named queue.
func NewEventQueue(connStr, name string) (*EventQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &EventQueue{queue: q}, nil
}

// EnsureQueue creates the queue when it does not exist yet.
func (q *EventQueue) EnsureQueue(ctx context.Context) error {
	_, err := q.queue.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
	}
	return nil
}

// Publish sends each settlement as one JSON message.
func (q *EventQueue) Publish(ctx context.Context, events []board.Settlement) error {
	for _, ev := range events {
		data, err := sonic.MarshalString(ev)
		if err != nil {
			return err
		}
		if _, err := q.queue.EnqueueMessage(ctx, data, nil); err != nil {
			return err
		}
	}
	return nil
}
