package api

import "tasktracker/domain"

const maxBodySize = 64 * 1024 // 64 KiB

// GET /api/tasks response body, also the payload of each /api/stream event
type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Count int           `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type healthResponse struct {
	Status       string `json:"status"`
	PersistError string `json:"persistError,omitempty"`
}
