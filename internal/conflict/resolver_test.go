package conflict

import (
	"testing"
)

func TestCheckVersionEqual(t *testing.T) {
	r := NewResolver()
	res := r.CheckVersion("ticket-1", 3, 3, nil)
	if !res.Valid {
		t.Error("equal versions should be valid")
	}
	if res.Conflict != nil {
		t.Error("no conflict info expected for valid check")
	}
}

func TestCheckVersionMismatch(t *testing.T) {
	r := NewResolver()
	res := r.CheckVersion("ticket-1", 3, 5, nil)
	if res.Valid {
		t.Fatal("mismatched versions should be invalid")
	}
	if res.Conflict == nil {
		t.Fatal("conflict info expected")
	}
	if res.Conflict.ExpectedVersion != 3 || res.Conflict.ActualVersion != 5 {
		t.Errorf("conflict versions wrong: %+v", res.Conflict)
	}

	opts := res.Conflict.ResolutionOptions
	// No conflicting fields identified: merge leads, force closes.
	want := []Strategy{StrategyMerge, StrategyRetry, StrategyAbort, StrategyForce}
	if len(opts) != len(want) {
		t.Fatalf("expected %d options, got %v", len(want), opts)
	}
	for i := range want {
		if opts[i] != want[i] {
			t.Errorf("option[%d] = %s, want %s", i, opts[i], want[i])
		}
	}
}

func TestCheckVersionMismatchWithFields(t *testing.T) {
	r := NewResolver()
	res := r.CheckVersion("ticket-1", 1, 2, []string{"status"})
	if res.Valid {
		t.Fatal("mismatched versions should be invalid")
	}

	opts := res.Conflict.ResolutionOptions
	for _, opt := range opts {
		if opt == StrategyMerge {
			t.Error("merge must not be offered when conflicting fields are known")
		}
	}
	if opts[len(opts)-1] != StrategyForce {
		t.Errorf("force must be last, got %v", opts)
	}
}

func TestDetectFieldConflictsConverged(t *testing.T) {
	r := NewResolver()
	// Both sides changed status open -> closed: convergence, no conflict.
	conflicts := r.DetectFieldConflicts(
		map[string]any{"status": "open"},
		map[string]any{"status": "closed"},
		map[string]any{"status": "closed"},
	)
	if len(conflicts) != 0 {
		t.Errorf("converged change should not conflict, got %v", conflicts)
	}
}

func TestDetectFieldConflictsDiverged(t *testing.T) {
	r := NewResolver()
	// They closed it, we archived it: true conflict.
	conflicts := r.DetectFieldConflicts(
		map[string]any{"status": "open"},
		map[string]any{"status": "closed"},
		map[string]any{"status": "archived"},
	)
	if len(conflicts) != 1 || conflicts[0] != "status" {
		t.Errorf("expected conflict on status, got %v", conflicts)
	}
}

func TestDetectFieldConflictsOnlyOursChanged(t *testing.T) {
	r := NewResolver()
	conflicts := r.DetectFieldConflicts(
		map[string]any{"assignee": "alice", "status": "open"},
		map[string]any{"assignee": "alice", "status": "open"},
		map[string]any{"assignee": "bob", "status": "open"},
	)
	if len(conflicts) != 0 {
		t.Errorf("one-sided change should not conflict, got %v", conflicts)
	}
}

func TestDetectFieldConflictsOnlyTheirsChanged(t *testing.T) {
	r := NewResolver()
	conflicts := r.DetectFieldConflicts(
		map[string]any{"status": "open"},
		map[string]any{"status": "closed"},
		map[string]any{"status": "open"},
	)
	if len(conflicts) != 0 {
		t.Errorf("our no-op write should not conflict, got %v", conflicts)
	}
}

func TestDetectFieldConflictsSkipsImmutable(t *testing.T) {
	r := NewResolver()
	conflicts := r.DetectFieldConflicts(
		map[string]any{"id": "t-1", "created_at": "2026-01-01"},
		map[string]any{"id": "t-2", "created_at": "2026-02-02"},
		map[string]any{"id": "t-3", "created_at": "2026-03-03"},
	)
	if len(conflicts) != 0 {
		t.Errorf("immutable fields must never conflict, got %v", conflicts)
	}
}

func TestAttemptMergeAuto(t *testing.T) {
	r := NewResolver()
	res := r.AttemptMerge(
		map[string]any{"status": "open", "assignee": ""},
		map[string]any{"status": "open", "assignee": "alice"},
		map[string]any{"status": "in_progress", "assignee": ""},
	)
	if !res.AutoMerged {
		t.Fatalf("expected auto merge, manual fields: %v", res.ManualFields)
	}
	// Their assignee survives, our status lands.
	if res.Merged["assignee"] != "alice" {
		t.Errorf("merge lost their change: %v", res.Merged)
	}
	if res.Merged["status"] != "in_progress" {
		t.Errorf("merge lost our change: %v", res.Merged)
	}
}

func TestAttemptMergeManual(t *testing.T) {
	r := NewResolver()
	res := r.AttemptMerge(
		map[string]any{"status": "open", "title": "old"},
		map[string]any{"status": "closed", "title": "theirs"},
		map[string]any{"status": "archived", "title": "ours"},
	)
	if res.AutoMerged {
		t.Fatal("diverged fields must not auto-merge")
	}
	if len(res.ManualFields) != 2 {
		t.Errorf("expected 2 manual fields, got %v", res.ManualFields)
	}
	// Conflicting fields keep the persisted value until resolved.
	if res.Merged["status"] != "closed" || res.Merged["title"] != "theirs" {
		t.Errorf("conflicting fields must keep persisted values: %v", res.Merged)
	}
}
