package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"tasktracker/domain"
)

func TestDecodeSnapshotDefaults(t *testing.T) {
	raw := `[
		{"id":"a","title":"Write report","createdAt":"2025-01-01T10:00:00.123Z","due":"2025-01-10","priority":"high","completed":true,"extra":1},
		{"id":"b","title":"  Buy milk ","due":null},
		{"id":"c","title":"Odd","due":"someday","priority":"urgent"},
		{"title":"No id"},
		{"id":"e","title":"   "},
		{"id":"a","title":"Duplicate"}
	]`
	tasks, dropped, err := decodeSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped records, got %d", dropped)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}

	a := tasks[0]
	want := time.Date(2025, 1, 1, 10, 0, 0, 123_000_000, time.UTC)
	if a.ID != "a" || !a.Completed || a.Priority != domain.PriorityHigh || a.Due.String() != "2025-01-10" || !a.CreatedAt.Equal(want) {
		t.Fatalf("unexpected first task %+v", a)
	}
	b := tasks[1]
	if b.Title != "Buy milk" || b.Notes != "" || b.Due != nil || b.Priority != domain.PriorityMedium || b.Completed {
		t.Fatalf("unexpected defaults %+v", b)
	}
	c := tasks[2]
	if c.Due != nil || c.Priority != domain.PriorityMedium {
		t.Fatalf("expected invalid due and priority to default, got %+v", c)
	}
	if tasks[3].ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestDecodeSnapshotEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null", "[]"} {
		tasks, err := DecodeSnapshot([]byte(raw))
		if err != nil || len(tasks) != 0 {
			t.Fatalf("expected empty for %q, got %v %v", raw, tasks, err)
		}
	}
}

func TestDecodeSnapshotCorrupt(t *testing.T) {
	for _, raw := range []string{"{not json", `{"id":"a"}`, `[{"title": 5}]`} {
		if _, err := DecodeSnapshot([]byte(raw)); !errors.Is(err, ErrCorruptSnapshot) {
			t.Fatalf("expected ErrCorruptSnapshot for %q, got %v", raw, err)
		}
	}
}

func TestEncodeSnapshotShape(t *testing.T) {
	data, err := EncodeSnapshot(nil)
	if err != nil || string(data) != "[]" {
		t.Fatalf("expected empty array, got %s %v", data, err)
	}

	due := domain.MustParseDate("2025-01-10")
	data, err = EncodeSnapshot([]domain.Task{{
		ID: "a", Title: "t", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Due: &due, Priority: domain.PriorityLow,
	}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(data)
	for _, frag := range []string{`"id":"a"`, `"notes":""`, `"createdAt":"2025-01-01T00:00:00Z"`, `"due":"2025-01-10"`, `"priority":"low"`, `"completed":false`} {
		if !strings.Contains(s, frag) {
			t.Fatalf("expected %s in %s", frag, s)
		}
	}
}
