package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric/noop"

	"tasktracker/domain"
)

const defaultPersistTimeout = 5 * time.Second

// Persister reads and writes the single snapshot slot holding every task.
// Load returns a nil slice and no error when the slot is empty.
type Persister interface {
	Load(ctx context.Context) ([]domain.Task, error)
	Save(ctx context.Context, tasks []domain.Task) error
}

// Dispatcher hands a snapshot to the remote sync hook without waiting for
// the outcome. It reports false when the snapshot was dropped.
type Dispatcher interface {
	Dispatch(tasks []domain.Task) bool
	Close()
}

// Store owns the task collection. Operations are serialized; every mutation
// is written through to the Persister and then offered to the Dispatcher.
type Store struct {
	mu             sync.Mutex
	tasks          []domain.Task
	persister      Persister
	dispatcher     Dispatcher
	logger         *log.Logger
	metrics        *storeMetrics
	persistTimeout time.Duration
	lastPersistErr error

	now   func() time.Time
	newID func() string
}

// New creates an empty store. Call Load to read the persisted snapshot.
// A nil dispatcher disables remote sync.
func New(p Persister, d Dispatcher, logger *log.Logger, persistTimeout time.Duration) *Store {
	if p == nil {
		panic("store.New: persister is nil")
	}
	if logger == nil {
		panic("store.New: logger is nil")
	}
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	m, err := defaultStoreMetrics()
	if err != nil {
		logger.WithError(err).Warn("store metrics unavailable")
		m, _ = newStoreMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return &Store{
		persister:      p,
		dispatcher:     d,
		logger:         logger,
		metrics:        m,
		persistTimeout: persistTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Load replaces the in-memory collection with the persisted snapshot. A
// missing snapshot yields an empty store. An unreadable one also yields an
// empty store; the cause is returned so callers can surface it, but the
// store stays usable.
func (s *Store) Load(ctx context.Context) error {
	tasks, err := s.persister.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.tasks = nil
		s.metrics.loadFailed(ctx)
		s.logger.WithError(err).Warn("task snapshot unreadable, starting with an empty list")
		return fmt.Errorf("load snapshot: %w", err)
	}
	s.tasks = domain.CloneTasks(tasks)
	s.logger.WithField("tasks", len(s.tasks)).Debug("task snapshot loaded")
	return nil
}

// Create validates the input and prepends a new task.
func (s *Store) Create(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	in, err := in.Normalize()
	if err != nil {
		s.logger.WithError(err).Debug("create rejected")
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := domain.Task{
		ID:        s.newID(),
		Title:     in.Title,
		Notes:     in.Notes,
		CreatedAt: s.now().UTC(),
		Priority:  in.Priority,
	}
	for s.indexLocked(t.ID) >= 0 {
		t.ID = s.newID()
	}
	if in.Due != nil {
		d := *in.Due
		t.Due = &d
	}

	s.tasks = append([]domain.Task{t}, s.tasks...)
	s.commitLocked(ctx, "create")
	return t.Clone(), nil
}

// Update merges patch into the task with the given id. It reports false
// without error when no such task exists. ID, CreatedAt and Completed never
// change.
func (s *Store) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return domain.Task{}, false, nil
	}
	if err := patch.Validate(); err != nil {
		s.logger.WithError(err).WithField("task", id).Debug("update rejected")
		return s.tasks[i].Clone(), true, err
	}
	s.tasks[i] = patch.Apply(s.tasks[i])
	s.commitLocked(ctx, "update")
	return s.tasks[i].Clone(), true, nil
}

// ToggleCompleted flips the completion flag. It reports false when no such
// task exists.
func (s *Store) ToggleCompleted(ctx context.Context, id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return domain.Task{}, false
	}
	s.tasks[i].Completed = !s.tasks[i].Completed
	s.commitLocked(ctx, "toggle")
	return s.tasks[i].Clone(), true
}

// Remove deletes the task. Asking the user for confirmation is the
// caller's job. It reports false when no such task exists.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.commitLocked(ctx, "remove")
	return true
}

// View returns a filtered, searched and sorted copy of the collection.
func (s *Store) View(filter domain.Filter, query string, sortBy domain.SortBy) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.View(s.tasks, filter, query, sortBy)
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

// Tasks returns a copy of the collection in insertion order.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneTasks(s.tasks)
}

func (s *Store) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Summarize(s.tasks)
}

// LastPersistError returns the error of the most recent snapshot write, or
// nil if it succeeded.
func (s *Store) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPersistErr
}

// Close stops the sync dispatcher, letting queued snapshots drain.
func (s *Store) Close() {
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// commitLocked writes the full collection to the persister and offers it to
// the dispatcher. Failures are logged and never returned: in-memory state
// stays authoritative until the next successful write.
func (s *Store) commitLocked(ctx context.Context, op string) {
	s.metrics.mutation(ctx, op)
	snapshot := domain.CloneTasks(s.tasks)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	err := s.persister.Save(saveCtx, snapshot)
	cancel()
	s.lastPersistErr = err
	if err != nil {
		s.metrics.persistFailed(ctx, op)
		s.logger.WithError(err).WithFields(log.Fields{"op": op, "tasks": len(snapshot)}).Error("failed to persist task snapshot")
	}

	if s.dispatcher != nil && !s.dispatcher.Dispatch(snapshot) {
		s.logger.WithField("op", op).Warn("remote sync skipped for this mutation")
	}
}
