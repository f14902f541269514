package domain

import (
	"strings"
	"time"
)

// Task represents a single to-do item.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	Due       *Date     `json:"due"`
	Priority  Priority  `json:"priority"`
	Completed bool      `json:"completed"`
}

// Clone returns a copy of t that shares no pointers with it.
func (t Task) Clone() Task {
	if t.Due != nil {
		d := *t.Due
		t.Due = &d
	}
	return t
}

// CloneTasks copies a task slice element by element.
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

// TaskInput carries the fields accepted when creating a task.
type TaskInput struct {
	Title    string   `json:"title"`
	Notes    string   `json:"notes"`
	Due      *Date    `json:"due"`
	Priority Priority `json:"priority"`
}

// Normalize trims the title, defaults the priority and validates the result.
func (in TaskInput) Normalize() (TaskInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return TaskInput{}, &ValidationError{Field: "title", Err: ErrEmptyTitle}
	}
	p, err := ParsePriority(string(in.Priority))
	if err != nil {
		return TaskInput{}, &ValidationError{Field: "priority", Err: err}
	}
	in.Priority = p
	if in.Due != nil && in.Due.IsZero() {
		in.Due = nil
	}
	return in, nil
}

// TaskPatch carries optional changes for an existing task. Nil fields are
// left untouched. ClearDue, or a blank Due, removes the due date.
type TaskPatch struct {
	Title    *string   `json:"title,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
	Due      *Date     `json:"due,omitempty"`
	ClearDue bool      `json:"clearDue,omitempty"`
	Priority *Priority `json:"priority,omitempty"`
}

// Validate checks the fields present in the patch.
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return &ValidationError{Field: "title", Err: ErrEmptyTitle}
	}
	if p.Priority != nil {
		if _, err := ParsePriority(string(*p.Priority)); err != nil {
			return &ValidationError{Field: "priority", Err: err}
		}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Notes == nil && p.Due == nil && !p.ClearDue && p.Priority == nil
}

// Apply merges the patch into t. ID, CreatedAt and Completed are never
// touched. The patch must have passed Validate.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.ClearDue || (p.Due != nil && p.Due.IsZero()) {
		t.Due = nil
	} else if p.Due != nil {
		d := *p.Due
		t.Due = &d
	}
	if p.Priority != nil {
		if pr, err := ParsePriority(string(*p.Priority)); err == nil {
			t.Priority = pr
		}
	}
	return t
}
