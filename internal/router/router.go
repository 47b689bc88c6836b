// Package router provides the in-process assignment router: it accepts
// routed tasks up to a capacity, tracks acknowledgment deadlines, and
// reports assignments whose deadline passed without an ack.
package router

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// ErrCapacity indicates the router has no free agent slots.
var ErrCapacity = errors.New("router at capacity")

// ErrDuplicateAssignment indicates the task is already assigned.
var ErrDuplicateAssignment = errors.New("task already assigned")

// Router routes assignments to agent slots and watches ack deadlines.
type Router struct {
	mu         sync.Mutex
	capacity   int
	ackTimeout time.Duration
	// assignments maps task ID to its live assignment.
	assignments map[string]*models.Assignment
	// acked tracks which assignments have been acknowledged.
	acked map[string]bool
	// reported tracks timeouts already surfaced, so each is reported once.
	reported map[string]bool
	now      func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithClock injects a clock for deterministic deadline tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a Router with the given slot capacity and ack timeout.
func New(capacity int, ackTimeout time.Duration, opts ...Option) *Router {
	if capacity < 1 {
		capacity = 1
	}
	r := &Router{
		capacity:    capacity,
		ackTimeout:  ackTimeout,
		assignments: make(map[string]*models.Assignment),
		acked:       make(map[string]bool),
		reported:    make(map[string]bool),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ActiveCount returns the number of live assignments.
func (r *Router) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assignments)
}

// Route accepts an assignment if a slot is free. The assignment gets an
// ID and an ack deadline; rejections are plain errors the loop logs and
// moves past.
func (r *Router) Route(a models.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.assignments) >= r.capacity {
		return fmt.Errorf("%d/%d slots busy: %w", len(r.assignments), r.capacity, ErrCapacity)
	}
	if _, exists := r.assignments[a.TaskID]; exists {
		return fmt.Errorf("task %s: %w", a.TaskID, ErrDuplicateAssignment)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.now()
	a.AssignedAt = now
	a.AckDeadline = now.Add(r.ackTimeout)
	r.assignments[a.TaskID] = &a
	return nil
}

// Ack marks an assignment as acknowledged by its assignee.
func (r *Router) Ack(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assignments[taskID]; !exists {
		return fmt.Errorf("no assignment for task %s", taskID)
	}
	r.acked[taskID] = true
	return nil
}

// Complete releases the slot held by the task's assignment.
func (r *Router) Complete(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, taskID)
	delete(r.acked, taskID)
	delete(r.reported, taskID)
}

// CheckTimeouts returns task IDs whose assignment passed its ack
// deadline without being acknowledged. Each overdue assignment is
// reported once; the decision to retry or escalate belongs to the
// caller, so the slot is not released here.
func (r *Router) CheckTimeouts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var overdue []string
	for taskID, a := range r.assignments {
		if r.acked[taskID] || r.reported[taskID] {
			continue
		}
		if now.After(a.AckDeadline) {
			overdue = append(overdue, taskID)
			r.reported[taskID] = true
		}
	}
	return overdue
}

// Assignment returns a copy of the live assignment for a task, if any.
func (r *Router) Assignment(taskID string) (models.Assignment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, exists := r.assignments[taskID]; exists {
		return *a, true
	}
	return models.Assignment{}, false
}
