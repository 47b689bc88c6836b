package router

import (
	"errors"
	"testing"
	"time"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

func TestRouteCapacity(t *testing.T) {
	r := New(2, time.Minute)

	if err := r.Route(models.Assignment{TaskID: "A"}); err != nil {
		t.Fatalf("route A: %v", err)
	}
	if err := r.Route(models.Assignment{TaskID: "B"}); err != nil {
		t.Fatalf("route B: %v", err)
	}
	if err := r.Route(models.Assignment{TaskID: "C"}); !errors.Is(err, ErrCapacity) {
		t.Errorf("expected ErrCapacity, got %v", err)
	}
	if got := r.ActiveCount(); got != 2 {
		t.Errorf("active count = %d, want 2", got)
	}

	r.Complete("A")
	if err := r.Route(models.Assignment{TaskID: "C"}); err != nil {
		t.Errorf("route after release: %v", err)
	}
}

func TestRouteDuplicate(t *testing.T) {
	r := New(4, time.Minute)
	if err := r.Route(models.Assignment{TaskID: "A"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if err := r.Route(models.Assignment{TaskID: "A"}); !errors.Is(err, ErrDuplicateAssignment) {
		t.Errorf("expected ErrDuplicateAssignment, got %v", err)
	}
}

func TestRouteAssignsIDAndDeadline(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	r := New(4, 30*time.Second, WithClock(func() time.Time { return now }))

	if err := r.Route(models.Assignment{TaskID: "A", Title: "Task A"}); err != nil {
		t.Fatalf("route: %v", err)
	}

	a, ok := r.Assignment("A")
	if !ok {
		t.Fatal("assignment not found")
	}
	if a.ID == "" {
		t.Error("assignment should get an ID")
	}
	if !a.AckDeadline.Equal(now.Add(30 * time.Second)) {
		t.Errorf("deadline = %v, want %v", a.AckDeadline, now.Add(30*time.Second))
	}
}

func TestCheckTimeouts(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	r := New(4, 30*time.Second, WithClock(func() time.Time { return now }))

	if err := r.Route(models.Assignment{TaskID: "A"}); err != nil {
		t.Fatalf("route A: %v", err)
	}
	if err := r.Route(models.Assignment{TaskID: "B"}); err != nil {
		t.Fatalf("route B: %v", err)
	}
	if err := r.Ack("B"); err != nil {
		t.Fatalf("ack B: %v", err)
	}

	// Before the deadline nothing is overdue.
	if overdue := r.CheckTimeouts(); len(overdue) != 0 {
		t.Errorf("expected no timeouts yet, got %v", overdue)
	}

	now = now.Add(time.Minute)
	overdue := r.CheckTimeouts()
	if len(overdue) != 1 || overdue[0] != "A" {
		t.Errorf("expected [A] overdue, got %v", overdue)
	}

	// Each timeout is reported once.
	if again := r.CheckTimeouts(); len(again) != 0 {
		t.Errorf("timeout reported twice: %v", again)
	}

	// The slot is not released by the sweep; that's the caller's call.
	if got := r.ActiveCount(); got != 2 {
		t.Errorf("active count = %d, want 2", got)
	}
}

func TestAckUnknownTask(t *testing.T) {
	r := New(4, time.Minute)
	if err := r.Ack("ghost"); err == nil {
		t.Error("expected error acking unknown task")
	}
}
