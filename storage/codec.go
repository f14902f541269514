package storage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"tasktracker/domain"
)

// DefaultKey is the fixed slot identifier the snapshot is stored under.
const DefaultKey = "echelon:tasks:v1"

// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt task snapshot")

// snapshotRecord mirrors domain.Task with every field loosely typed so that
// older or hand-edited snapshots still load.
type snapshotRecord struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Notes     string  `json:"notes"`
	CreatedAt string  `json:"createdAt"`
	Due       *string `json:"due"`
	Priority  string  `json:"priority"`
	Completed bool    `json:"completed"`
}

// EncodeSnapshot serializes the full collection as a JSON array.
func EncodeSnapshot(tasks []domain.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return sonic.ConfigStd.Marshal(tasks)
}

// DecodeSnapshot parses a snapshot written by EncodeSnapshot or by an older
// client. Empty input and JSON null decode to an empty collection.
func DecodeSnapshot(data []byte) ([]domain.Task, error) {
	tasks, _, err := decodeSnapshot(data)
	return tasks, err
}

// decodeSnapshot also reports how many records were dropped because they
// could not satisfy the task invariants.
func decodeSnapshot(data []byte) ([]domain.Task, int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, 0, nil
	}
	var records []snapshotRecord
	if err := sonic.ConfigStd.Unmarshal(data, &records); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	tasks := make([]domain.Task, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	dropped := 0
	for _, rec := range records {
		t, ok := rec.task()
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[t.ID]; dup {
			dropped++
			continue
		}
		seen[t.ID] = struct{}{}
		tasks = append(tasks, t)
	}
	return tasks, dropped, nil
}

func (r snapshotRecord) task() (domain.Task, bool) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return domain.Task{}, false
	}
	t := domain.Task{
		ID:        r.ID,
		Title:     title,
		Notes:     r.Notes,
		Completed: r.Completed,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if ts, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
		t.CreatedAt = ts.UTC()
	}
	if r.Due != nil && strings.TrimSpace(*r.Due) != "" {
		if d, err := domain.ParseDate(*r.Due); err == nil {
			t.Due = &d
		}
	}
	p, err := domain.ParsePriority(r.Priority)
	if err != nil {
		p = domain.PriorityMedium
	}
	t.Priority = p
	return t, true
}
