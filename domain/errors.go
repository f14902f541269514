package domain

import "errors"

var (
	ErrEmptyTitle      = errors.New("title must not be empty")
	ErrInvalidPriority = errors.New("priority must be one of high, medium, low")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidFilter   = errors.New("filter must be one of all, pending, completed")
	ErrInvalidSort     = errors.New("sort must be one of created, due, priority")
)

// ValidationError reports a rejected field of a create or update request.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }
