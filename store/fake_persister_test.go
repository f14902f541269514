package store

import (
	"context"
	"errors"
	"sync"

	"tasktracker/domain"
)

type fakePersister struct {
	mu       sync.Mutex
	snapshot []domain.Task
	loadErr  error
	saveErr  error
	saves    int
}

func (f *fakePersister) Load(ctx context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.snapshot == nil {
		return nil, nil
	}
	return domain.CloneTasks(f.snapshot), nil
}

func (f *fakePersister) Save(ctx context.Context, tasks []domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snapshot = domain.CloneTasks(tasks)
	return nil
}

func (f *fakePersister) Snapshot() []domain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.CloneTasks(f.snapshot)
}

func (f *fakePersister) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type fakeDispatcher struct {
	mu       sync.Mutex
	received [][]domain.Task
	reject   bool
	closed   bool
}

func (f *fakeDispatcher) Dispatch(tasks []domain.Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.received = append(f.received, tasks)
	return true
}

func (f *fakeDispatcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeDispatcher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

var errDiskFull = errors.New("disk full")
