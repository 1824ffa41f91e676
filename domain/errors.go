package domain

import "errors"

// Reducer errors. A command that fails with one of these leaves the state
// untouched.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrDuplicateTask   = errors.New("task already exists")
	ErrMissingTaskID   = errors.New("task id is required")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidOrder    = errors.New("task order must be a permutation of the column")
	ErrUnknownCommand  = errors.New("unknown command")
)
