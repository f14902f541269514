package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"tasktracker/domain"
)

// Syncer pushes the full task collection to a remote collaborator. It is
// always invoked off the mutation path; its result never changes local
// state.
type Syncer interface {
	Sync(ctx context.Context, tasks []domain.Task) (bool, error)
}

// Func adapts a function to Syncer.
type Func func(ctx context.Context, tasks []domain.Task) (bool, error)

func (f Func) Sync(ctx context.Context, tasks []domain.Task) (bool, error) { return f(ctx, tasks) }

// Stub accepts every snapshot. It stands in until a real remote exists.
type Stub struct{}

func (Stub) Sync(context.Context, []domain.Task) (bool, error) { return true, nil }

// Fanout calls every syncer in order. It succeeds only if all of them do.
func Fanout(syncers ...Syncer) Syncer {
	return Func(func(ctx context.Context, tasks []domain.Task) (bool, error) {
		ok := true
		var errs []error
		for _, s := range syncers {
			sok, err := s.Sync(ctx, tasks)
			if err != nil {
				errs = append(errs, err)
			}
			ok = ok && sok
		}
		return ok && len(errs) == 0, errors.Join(errs...)
	})
}

// RedisPublisher announces each snapshot on a Redis channel so local
// listeners can follow changes.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

type snapshotMessage struct {
	Count    int           `json:"count"`
	SyncedAt time.Time     `json:"syncedAt"`
	Tasks    []domain.Task `json:"tasks"`
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if client == nil {
		panic("syncer.NewRedisPublisher: client is nil")
	}
	if channel == "" {
		channel = "tasks"
	}
	return &RedisPublisher{client: client, channel: channel, now: time.Now}
}

func (p *RedisPublisher) Sync(ctx context.Context, tasks []domain.Task) (bool, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	payload, err := sonic.ConfigStd.Marshal(snapshotMessage{Count: len(tasks), SyncedAt: p.now().UTC(), Tasks: tasks})
	if err != nil {
		return false, err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return false, err
	}
	return true, nil
}
