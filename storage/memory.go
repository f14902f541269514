package storage

import (
	"context"
	"sync"

	"tasktracker/domain"
)

// MemoryStore holds the encoded snapshot in process memory. It goes through
// the same codec as the durable backends.
type MemoryStore struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DecodeSnapshot(m.data)
}

func (m *MemoryStore) Save(ctx context.Context, tasks []domain.Task) error {
	data, err := EncodeSnapshot(tasks)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = data
	return nil
}

// Raw returns a copy of the stored bytes.
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// SetRaw replaces the stored bytes, e.g. to simulate external corruption.
func (m *MemoryStore) SetRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}

// FailSaves makes subsequent saves return err; nil restores normal writes.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}
