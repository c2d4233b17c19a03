package errors

import "errors"

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrDuplicateTask = errors.New("task already queued")
	ErrTaskActive    = errors.New("task has an active worker")
	ErrNotRetryable  = errors.New("task is not in a retryable state")
	ErrShuttingDown  = errors.New("service is shutting down")
)
