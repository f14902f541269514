package domain

import (
	"math"
	"slices"
	"strings"
)

// Filter selects tasks by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// ParseFilter maps user input to a Filter. An empty string means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterCompleted:
		return f, nil
	}
	return "", ErrInvalidFilter
}

func (f Filter) match(t Task) bool {
	switch f {
	case FilterCompleted:
		return t.Completed
	case FilterPending:
		return !t.Completed
	}
	return true
}

// SortBy names the display order of a view.
type SortBy string

const (
	SortCreated  SortBy = "created"
	SortDue      SortBy = "due"
	SortPriority SortBy = "priority"
)

// ParseSortBy maps user input to a SortBy. An empty string means created.
func ParseSortBy(s string) (SortBy, error) {
	switch sb := SortBy(strings.ToLower(strings.TrimSpace(s))); sb {
	case "":
		return SortCreated, nil
	case SortCreated, SortDue, SortPriority:
		return sb, nil
	}
	return "", ErrInvalidSort
}

// View filters tasks by completion, then by a case-insensitive substring of
// title or notes, then sorts the survivors. The input slice is not modified.
// Unknown filters pass everything and unknown sort keys fall back to created.
func View(tasks []Task, filter Filter, query string, sortBy SortBy) []Task {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !filter.match(t) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Notes), q) {
			continue
		}
		out = append(out, t.Clone())
	}

	switch sortBy {
	case SortDue:
		slices.SortStableFunc(out, compareDue)
	case SortPriority:
		slices.SortStableFunc(out, func(a, b Task) int {
			return a.Priority.Rank() - b.Priority.Rank()
		})
	default:
		slices.SortStableFunc(out, func(a, b Task) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
	return out
}

// compareDue orders dated tasks by day and puts undated ones last.
func compareDue(a, b Task) int {
	switch {
	case a.Due == nil && b.Due == nil:
		return 0
	case a.Due == nil:
		return 1
	case b.Due == nil:
		return -1
	case a.Due.Before(*b.Due):
		return -1
	case b.Due.Before(*a.Due):
		return 1
	}
	return 0
}

// Stats summarizes a task collection.
type Stats struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	Pending      int `json:"pending"`
	HighPriority int `json:"highPriority"`
	// Progress is the rounded percentage of completed tasks.
	Progress int `json:"progress"`
}

func Summarize(tasks []Task) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
		if t.Priority == PriorityHigh {
			s.HighPriority++
		}
	}
	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.Progress = int(math.Round(float64(s.Completed) * 100 / float64(s.Total)))
	}
	return s
}
