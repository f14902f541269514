package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tasktracker/domain"
)

// FileStore keeps the snapshot in one file inside a directory, the file
// name derived from the slot key.
type FileStore struct {
	dir    string
	path   string
	logger *log.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewFileStore creates dir if needed and returns a store for key.
func NewFileStore(dir, key string, logger *log.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store dir required")
	}
	if key == "" {
		key = DefaultKey
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{
		dir:    dir,
		path:   filepath.Join(dir, slotFileName(key)),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A corrupt file is moved aside before the error
// is returned so the next Save cannot overwrite the only copy.
func (s *FileStore) Load(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	tasks, dropped, err := decodeSnapshot(data)
	if err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if rerr := os.Rename(s.path, quarantine); rerr != nil {
			s.logger.WithError(rerr).WithField("path", s.path).Error("failed to quarantine corrupt snapshot")
		} else {
			s.logger.WithFields(log.Fields{"path": s.path, "quarantine": quarantine}).Warn("corrupt snapshot moved aside")
		}
		return nil, err
	}
	if dropped > 0 {
		s.logger.WithFields(log.Fields{"path": s.path, "dropped": dropped}).Warn("dropped invalid task records from snapshot")
	}
	return tasks, nil
}

// Save replaces the snapshot atomically: temp file, fsync, rename, then
// fsync of the directory.
func (s *FileStore) Save(ctx context.Context, tasks []domain.Task) error {
	data, err := EncodeSnapshot(tasks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := writeFileSync(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(s.dir)
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// slotFileName maps a slot key to a safe file name.
func slotFileName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ".json"
}
