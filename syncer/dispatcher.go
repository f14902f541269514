package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"tasktracker/domain"
)

// Config sizes the dispatcher. Zero values fall back to defaults.
type Config struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

const (
	defaultWorkers = 1
	defaultBuffer  = 64
	defaultTimeout = 30 * time.Second
)

// Dispatcher runs Syncer calls on worker goroutines so that mutations never
// wait on the remote.
type Dispatcher struct {
	syncer  Syncer
	logger  *log.Logger
	metrics *syncMetrics
	cfg     Config

	mu     sync.RWMutex
	jobs   chan []domain.Task
	closed bool
	wg     sync.WaitGroup

	succeeded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts the workers. Call Close to stop them.
func NewDispatcher(s Syncer, cfg Config, logger *log.Logger) *Dispatcher {
	if s == nil {
		panic("syncer.NewDispatcher: syncer is nil")
	}
	if logger == nil {
		panic("syncer.NewDispatcher: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HandoffTimeout < 0 {
		cfg.HandoffTimeout = 0
	}

	d := &Dispatcher{
		syncer:  s,
		logger:  logger,
		metrics: defaultSyncMetrics(),
		cfg:     cfg,
		jobs:    make(chan []domain.Task, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Debugf("sync dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return d
}

// Dispatch queues a snapshot. It waits at most the handoff timeout for
// buffer space and reports false if the snapshot was dropped. The caller
// must not modify tasks afterwards.
func (d *Dispatcher) Dispatch(tasks []domain.Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop("closed", len(tasks))
		return false
	}

	select {
	case d.jobs <- tasks:
		d.metrics.add(d.metrics.dispatched)
		return true
	default:
	}
	if d.cfg.HandoffTimeout <= 0 {
		d.drop("saturated", len(tasks))
		return false
	}

	timer := time.NewTimer(d.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case d.jobs <- tasks:
		d.metrics.add(d.metrics.dispatched)
		return true
	case <-timer.C:
		d.drop("saturated", len(tasks))
		return false
	}
}

// Close stops accepting snapshots and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

// Stats reports sync outcomes since start.
func (d *Dispatcher) Stats() (succeeded, failed, dropped uint64) {
	return d.succeeded.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) drop(reason string, count int) {
	d.dropped.Add(1)
	d.metrics.add(d.metrics.dropped)
	d.logger.WithFields(log.Fields{"reason": reason, "tasks": count}).Warn("sync snapshot dropped")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for tasks := range d.jobs {
		ok, err := d.run(tasks)
		if err != nil || !ok {
			d.failed.Add(1)
			d.metrics.add(d.metrics.failures)
			entry := d.logger.WithFields(log.Fields{"worker": id, "tasks": len(tasks)})
			if err != nil {
				entry = entry.WithError(err)
			}
			entry.Error("remote sync failed")
			continue
		}
		d.succeeded.Add(1)
	}
}

func (d *Dispatcher) run(tasks []domain.Task) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	return d.syncer.Sync(ctx, tasks)
}
