// Package models defines the shared domain types used across the
// orchestration core: tasks, failures, recovery actions, assignments,
// and versioned tickets.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting on dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates all dependencies are completed and the
	// task can be started.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates the task has been started.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task cannot proceed because a
	// dependency failed or was skipped.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusCancelled indicates the task was cancelled.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked,
		TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible from this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// Task represents a unit of work in the shared backlog.
type Task struct {
	// ID is the unique, stable identifier for this task.
	ID string `json:"id" yaml:"id"`
	// Title is the short description of the task.
	Title string `json:"title" yaml:"title"`
	// Priority orders selection among ready tasks; lower number = higher urgency.
	Priority int `json:"priority" yaml:"priority"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status" yaml:"-"`
	// CreatedAt is when the task was added to the store.
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	// StartedAt is when the task was started, if it has been.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"-"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
	// Error contains the failure reason if the task failed.
	Error string `json:"error,omitempty" yaml:"-"`
	// BlockedReason explains why a blocked task cannot proceed,
	// e.g. "dependency_failed:task-3".
	BlockedReason string `json:"blocked_reason,omitempty" yaml:"-"`
}

// Clone returns a deep copy of the task so callers cannot mutate store state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.StartedAt != nil {
		st := *t.StartedAt
		cp.StartedAt = &st
	}
	if t.CompletedAt != nil {
		ct := *t.CompletedAt
		cp.CompletedAt = &ct
	}
	return &cp
}
