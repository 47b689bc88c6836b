package recovery

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

type recordingNotifier struct {
	taskID   string
	attempts int
	calls    int
}

func (n *recordingNotifier) NotifyRetryLimitExceeded(taskID string, attempts int) {
	n.taskID = taskID
	n.attempts = attempts
	n.calls++
}

func failureAt(taskID string, et models.ErrorType, ts time.Time) models.TaskFailure {
	return models.TaskFailure{TaskID: taskID, Error: "boom", Type: et, Timestamp: ts}
}

func TestExponentialDelay(t *testing.T) {
	e := Exponential{Base: 5 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{-1, 5 * time.Second},
	}
	for _, c := range cases {
		if got := e.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
	// Huge attempts clamp instead of overflowing into negatives.
	if e.Delay(100) <= 0 {
		t.Error("clamped delay must stay positive")
	}
}

func TestRetryBackoffScenario(t *testing.T) {
	// Three runtime failures 10s apart with a 5s base produce retries
	// with doubling windows; the fourth escalates.
	notifier := &recordingNotifier{}
	m := New(3, Exponential{Base: 5000 * time.Millisecond}, notifier)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	wantWindows := []time.Duration{
		5000 * time.Millisecond,
		10000 * time.Millisecond,
		20000 * time.Millisecond,
	}
	for i, want := range wantWindows {
		res := m.HandleFailure(failureAt("task-1", models.ErrorTypeRuntime, t0.Add(time.Duration(i)*10000*time.Millisecond)))
		if res.Action != models.RecoveryRetry {
			t.Fatalf("failure %d: expected retry, got %s (%s)", i+1, res.Action, res.Message)
		}
		if res.BackoffWindow != want {
			t.Errorf("failure %d: backoff window = %v, want %v", i+1, res.BackoffWindow, want)
		}
		if res.RetryCount != i+1 {
			t.Errorf("failure %d: retry count = %d, want %d", i+1, res.RetryCount, i+1)
		}
	}

	if m.CanRetry("task-1") {
		t.Error("retry budget should be exhausted after 3 retries")
	}

	res := m.HandleFailure(failureAt("task-1", models.ErrorTypeRuntime, t0.Add(30000*time.Millisecond)))
	if res.Action != models.RecoveryEscalate {
		t.Fatalf("fourth failure should escalate, got %s", res.Action)
	}
	if res.Success || res.CanRetry {
		t.Error("escalation must report success=false, canRetry=false")
	}
	if notifier.calls != 1 || notifier.taskID != "task-1" || notifier.attempts != 3 {
		t.Errorf("notifier called with (%q, %d) x%d, want (task-1, 3) x1",
			notifier.taskID, notifier.attempts, notifier.calls)
	}
}

func TestSemanticFailuresInvestigate(t *testing.T) {
	m := New(3, Exponential{Base: time.Second}, nil)
	t0 := time.Now()

	for _, et := range []models.ErrorType{models.ErrorTypeValidation, models.ErrorTypeDependency} {
		res := m.HandleFailure(failureAt("task-v", et, t0))
		if res.Action != models.RecoveryInvestigate {
			t.Errorf("%s failure should investigate, got %s", et, res.Action)
		}
		if res.Report == "" {
			t.Errorf("%s investigation should carry a report", et)
		}
	}

	// Investigations do not consume retry budget.
	if got := m.RetryCount("task-v"); got != 0 {
		t.Errorf("retry count = %d, want 0", got)
	}
}

func TestBackoffNotElapsedInvestigates(t *testing.T) {
	m := New(3, Exponential{Base: time.Minute}, nil)
	t0 := time.Now()

	first := m.HandleFailure(failureAt("task-b", models.ErrorTypeTimeout, t0))
	if first.Action != models.RecoveryRetry {
		t.Fatalf("first failure should retry, got %s", first.Action)
	}

	// One second later the one-minute window is nowhere near elapsed.
	second := m.HandleFailure(failureAt("task-b", models.ErrorTypeTimeout, t0.Add(time.Second)))
	if second.Action != models.RecoveryInvestigate {
		t.Fatalf("premature failure should investigate, got %s", second.Action)
	}
	if got := m.RetryCount("task-b"); got != 1 {
		t.Errorf("premature failure must not bump retry count, got %d", got)
	}
}

func TestInvestigationReportBounded(t *testing.T) {
	m := New(3, Exponential{Base: time.Second}, nil)

	f := models.TaskFailure{
		TaskID:        "task-r",
		Error:         strings.Repeat("x", 600),
		Type:          models.ErrorTypeValidation,
		Timestamp:     time.Now(),
		StackTrace:    "line1\nline2\nline3\nline4\nline5",
		ModifiedFiles: []string{"a.go", "b.go"},
	}
	res := m.HandleFailure(f)

	if len(res.Report) > 500 {
		t.Errorf("report length %d exceeds cap", len(res.Report))
	}
	if strings.Contains(res.Report, "line4") {
		t.Error("report must carry at most 3 stack lines")
	}
}

func TestInvestigationReportTrimsToRuneBoundary(t *testing.T) {
	m := New(3, Exponential{Base: time.Second}, nil)

	// Multi-byte error text sized so the byte cap lands mid-rune.
	f := models.TaskFailure{
		TaskID:    "task-u",
		Error:     strings.Repeat("界", 300),
		Type:      models.ErrorTypeValidation,
		Timestamp: time.Now(),
	}
	res := m.HandleFailure(f)

	if len(res.Report) > 500 {
		t.Errorf("report length %d exceeds cap", len(res.Report))
	}
	if !utf8.ValidString(res.Report) {
		t.Error("truncation split a rune")
	}
}

func TestInvestigationReportContent(t *testing.T) {
	m := New(3, Exponential{Base: time.Second}, nil)

	f := models.TaskFailure{
		TaskID:        "task-r",
		Error:         "schema mismatch",
		Type:          models.ErrorTypeValidation,
		Timestamp:     time.Now(),
		StackTrace:    "line1\nline2",
		ModifiedFiles: []string{"a.go"},
	}
	res := m.HandleFailure(f)

	for _, want := range []string{"task-r", "schema mismatch", "line1", "line2", "a.go"} {
		if !strings.Contains(res.Report, want) {
			t.Errorf("report missing %q: %s", want, res.Report)
		}
	}
}

func TestResetRetryCount(t *testing.T) {
	m := New(3, Exponential{Base: time.Millisecond}, nil)
	t0 := time.Now()

	m.HandleFailure(failureAt("task-x", models.ErrorTypeRuntime, t0))
	if got := m.RetryCount("task-x"); got != 1 {
		t.Fatalf("retry count = %d, want 1", got)
	}

	m.ResetRetryCount("task-x")
	if got := m.RetryCount("task-x"); got != 0 {
		t.Errorf("retry count after reset = %d, want 0", got)
	}
	if !m.CanRetry("task-x") {
		t.Error("reset task should be retryable again")
	}
	if m.Failures("task-x") != nil {
		t.Error("reset should drop failure history for the task")
	}
}

func TestEveryDecisionAppendsHistory(t *testing.T) {
	m := New(1, Exponential{Base: time.Millisecond}, nil)
	t0 := time.Now()

	m.HandleFailure(failureAt("t", models.ErrorTypeRuntime, t0))              // retry
	m.HandleFailure(failureAt("t", models.ErrorTypeValidation, t0.Add(time.Second))) // escalate? count=1>=1
	m.HandleFailure(failureAt("u", models.ErrorTypeValidation, t0))           // investigate

	hist := m.History()
	if len(hist) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(hist))
	}
	wantActions := []models.RecoveryActionType{
		models.RecoveryRetry, models.RecoveryEscalate, models.RecoveryInvestigate,
	}
	for i, want := range wantActions {
		if hist[i].Action != want {
			t.Errorf("history[%d] = %s, want %s", i, hist[i].Action, want)
		}
	}

	m.Clear()
	if len(m.History()) != 0 {
		t.Error("clear should wipe history")
	}
}

func TestFailureHistoryOrdered(t *testing.T) {
	m := New(5, Exponential{Base: time.Millisecond}, nil)
	t0 := time.Now()

	for i := 0; i < 3; i++ {
		m.HandleFailure(models.TaskFailure{
			TaskID:    "t",
			Error:     string(rune('a' + i)),
			Type:      models.ErrorTypeRuntime,
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
		})
	}

	failures := m.Failures("t")
	if len(failures) != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", len(failures))
	}
	for i, f := range failures {
		if f.Error != string(rune('a'+i)) {
			t.Errorf("failures out of order: %v", failures)
		}
	}
}
