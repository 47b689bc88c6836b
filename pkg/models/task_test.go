package models

import (
	"testing"
	"time"
)

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked,
		TaskStatusCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("bogus").Valid() {
		t.Error("expected 'bogus' to be invalid")
	}
	if TaskStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
	if !TaskStatusCancelled.Terminal() {
		t.Error("cancelled should be terminal")
	}
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusReady, TaskStatusRunning, TaskStatusFailed, TaskStatusBlocked} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

func TestTaskClone(t *testing.T) {
	started := time.Now()
	orig := &Task{
		ID:        "task-1",
		Title:     "Task 1",
		Priority:  2,
		DependsOn: []string{"task-0"},
		Status:    TaskStatusRunning,
		StartedAt: &started,
	}

	cp := orig.Clone()
	cp.DependsOn[0] = "mutated"
	*cp.StartedAt = started.Add(time.Hour)

	if orig.DependsOn[0] != "task-0" {
		t.Error("clone shares DependsOn slice with original")
	}
	if !orig.StartedAt.Equal(started) {
		t.Error("clone shares StartedAt pointer with original")
	}
}

func TestTaskCloneNil(t *testing.T) {
	var tk *Task
	if tk.Clone() != nil {
		t.Error("expected nil clone of nil task")
	}
}

func TestErrorTypeTransient(t *testing.T) {
	cases := []struct {
		et   ErrorType
		want bool
	}{
		{ErrorTypeRuntime, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeUnknown, true},
		{ErrorTypeValidation, false},
		{ErrorTypeDependency, false},
	}
	for _, c := range cases {
		if got := c.et.Transient(); got != c.want {
			t.Errorf("Transient(%q) = %v, want %v", c.et, got, c.want)
		}
	}
}
