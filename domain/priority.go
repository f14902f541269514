package domain

import "strings"

// Priority is the ordered urgency of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// ParsePriority accepts the three levels case-insensitively. An empty string
// yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", ErrInvalidPriority
	}
	return p, nil
}

// Valid reports whether p is one of the defined levels.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank orders priorities: high sorts first. Unknown values rank as medium.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[PriorityMedium]
}
