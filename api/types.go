package api

import (
	"context"

	"tasktracker/domain"
)

// TaskService is the slice of the task store the handlers depend on.
type TaskService interface {
	View(filter domain.Filter, query string, sortBy domain.SortBy) []domain.Task
	Get(id string) (domain.Task, bool)
	Create(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, bool, error)
	ToggleCompleted(ctx context.Context, id string) (domain.Task, bool)
	Remove(ctx context.Context, id string) bool
	Stats() domain.Stats
	LastPersistError() error
}
