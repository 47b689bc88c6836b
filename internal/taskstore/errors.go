package taskstore

import "errors"

// Structural errors are rejected synchronously and never retried; the
// caller must correct the request.
var (
	// ErrAlreadyExists indicates an insertion with a duplicate task ID.
	ErrAlreadyExists = errors.New("task already exists")
	// ErrCircularDependency indicates an insertion that would create a
	// cycle in the dependency graph.
	ErrCircularDependency = errors.New("circular dependency detected")
	// ErrNotFound indicates the referenced task is not in the store.
	ErrNotFound = errors.New("task not found")
	// ErrNotReady indicates a start was requested while at least one
	// dependency is not completed.
	ErrNotReady = errors.New("task not ready")
	// ErrInvalidTransition indicates a status transition the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)
