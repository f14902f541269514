package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"tasktracker/domain"
)

// Azure Storage rejects queue messages larger than 64 KiB.
const maxQueueMessageBytes = 64 * 1024

type queue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueSender enqueues each snapshot on an Azure Storage queue for a remote
// consumer.
type QueueSender struct {
	q      queue
	client *azqueue.QueueClient
	now    func() time.Time
}

func NewQueueSender(connStr, queueName string) (*QueueSender, error) {
	if queueName == "" {
		queueName = "tasks-sync"
	}
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    5 * time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 60 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	client, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueSender{q: client, client: client, now: time.Now}, nil
}

// EnsureQueue creates the queue if it does not exist yet.
func (s *QueueSender) EnsureQueue(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if _, err := s.client.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}

func (s *QueueSender) Sync(ctx context.Context, tasks []domain.Task) (bool, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	payload, err := sonic.ConfigStd.Marshal(snapshotMessage{Count: len(tasks), SyncedAt: s.now().UTC(), Tasks: tasks})
	if err != nil {
		return false, err
	}
	if len(payload) > maxQueueMessageBytes {
		return false, fmt.Errorf("syncer: snapshot of %d tasks is %d bytes, queue messages are capped at %d", len(tasks), len(payload), maxQueueMessageBytes)
	}
	if _, err := s.q.EnqueueMessage(ctx, string(payload), nil); err != nil {
		return false, err
	}
	return true, nil
}
