package models

import "time"

// Assignment is the handoff of a ready task to the assignment router.
type Assignment struct {
	// ID is the unique identifier for this assignment attempt.
	ID string `json:"id"`
	// TaskID identifies the task being assigned.
	TaskID string `json:"task_id"`
	// Title is carried along for routing and display.
	Title string `json:"title"`
	// Priority mirrors the task's priority at assignment time.
	Priority int `json:"priority"`
	// AssignedAt is when the router accepted the assignment.
	AssignedAt time.Time `json:"assigned_at"`
	// AckDeadline is when the assignee must acknowledge before the
	// assignment is reported as timed out.
	AckDeadline time.Time `json:"ack_deadline"`
}
