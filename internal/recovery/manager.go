// Package recovery tracks per-task failure history and decides what to
// do about each new failure: retry with exponential backoff, generate an
// investigation report for failures that retrying cannot fix, or
// escalate to a human once the retry budget is exhausted.
package recovery

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// reportMaxLen caps the investigation report payload.
const reportMaxLen = 500

// stackExcerptLines is how many stack-trace lines a report carries.
const stackExcerptLines = 3

// Notifier is the human-in-the-loop escalation hook. Implementations
// must not block the caller on delivery problems.
type Notifier interface {
	NotifyRetryLimitExceeded(taskID string, attempts int)
}

// NopNotifier discards escalation notifications.
type NopNotifier struct{}

// NotifyRetryLimitExceeded implements Notifier.
func (NopNotifier) NotifyRetryLimitExceeded(string, int) {}

// RetryState is the per-task failure bookkeeping. Created lazily on the
// first failure, deleted on ResetRetryCount or Clear.
type RetryState struct {
	// Count is the number of retries granted so far.
	Count int `json:"count"`
	// LastRetryAt is when the most recent retry was granted.
	LastRetryAt time.Time `json:"last_retry_at"`
	// Failures is the ordered, append-only failure history.
	Failures []models.TaskFailure `json:"failures"`
	// Exhausted marks the task non-retryable after escalation.
	Exhausted bool `json:"exhausted"`
}

// Result is the outcome of a recovery decision.
type Result struct {
	// Action is the decision taken.
	Action models.RecoveryActionType `json:"action"`
	// Success is false only for escalation, the terminal failure path.
	Success bool `json:"success"`
	// CanRetry reports whether further retries remain after this decision.
	CanRetry bool `json:"can_retry"`
	// RetryCount is the retry count after this decision.
	RetryCount int `json:"retry_count"`
	// BackoffWindow is the window applied to this attempt, for retry
	// decisions.
	BackoffWindow time.Duration `json:"backoff_window,omitempty"`
	// Message is a human-readable summary.
	Message string `json:"message"`
	// Report is the bounded diagnostic payload, for investigate decisions.
	Report string `json:"report,omitempty"`
}

// Manager makes recovery decisions. It has no visibility into task
// success on its own: callers must invoke ResetRetryCount after a task
// eventually completes.
type Manager struct {
	mu         sync.Mutex
	maxRetries int
	policy     BackoffPolicy
	notifier   Notifier
	states     map[string]*RetryState
	// history is the process-wide, append-only record of every decision.
	history []models.RecoveryAction
	logf    func(format string, args ...interface{})
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger injects a debug log function.
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(m *Manager) { m.logf = logf }
}

// New creates a Manager. maxRetries bounds retries per task; policy is
// the injected backoff schedule; notifier receives escalations (pass
// NopNotifier to disable).
func New(maxRetries int, policy BackoffPolicy, notifier Notifier, opts ...Option) *Manager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	m := &Manager{
		maxRetries: maxRetries,
		policy:     policy,
		notifier:   notifier,
		states:     make(map[string]*RetryState),
		logf:       func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleFailure records the failure and decides the recovery action.
// Decisions are evaluated against the failure record's own timestamp so
// a replayed failure history always produces the same decisions.
func (m *Manager) HandleFailure(f models.TaskFailure) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[f.TaskID]
	if !ok {
		st = &RetryState{}
		m.states[f.TaskID] = st
	}
	st.Failures = append(st.Failures, f)

	var res Result
	switch {
	case st.Exhausted || st.Count >= m.maxRetries:
		res = m.escalate(st, f)
	case !f.Type.Transient():
		res = m.investigate(st, f,
			fmt.Sprintf("%s failures are not transient; retrying would waste cycles", f.Type))
	case st.Count > 0 && f.Timestamp.Sub(st.LastRetryAt) < m.policy.Delay(st.Count-1):
		// The previous retry's window has not fully elapsed.
		res = m.investigate(st, f,
			fmt.Sprintf("backoff window %s not yet elapsed since last retry", m.policy.Delay(st.Count-1)))
	default:
		res = m.retry(st, f)
	}

	m.history = append(m.history, models.RecoveryAction{
		Action:    res.Action,
		TaskID:    f.TaskID,
		Reason:    res.Message,
		Timestamp: f.Timestamp,
	})
	m.logf("[recovery] task %s: %s (retries=%d/%d)", f.TaskID, res.Action, res.RetryCount, m.maxRetries)
	return res
}

// retry grants another attempt. The window applied to this attempt is
// reported so callers can schedule the resubmission.
func (m *Manager) retry(st *RetryState, f models.TaskFailure) Result {
	window := m.policy.Delay(st.Count)
	st.Count++
	st.LastRetryAt = f.Timestamp

	return Result{
		Action:        models.RecoveryRetry,
		Success:       true,
		CanRetry:      st.Count < m.maxRetries,
		RetryCount:    st.Count,
		BackoffWindow: window,
		Message:       fmt.Sprintf("retry %d/%d after %s failure", st.Count, m.maxRetries, f.Type),
	}
}

// investigate produces a bounded diagnostic payload instead of retrying.
func (m *Manager) investigate(st *RetryState, f models.TaskFailure, why string) Result {
	return Result{
		Action:     models.RecoveryInvestigate,
		Success:    true,
		CanRetry:   st.Count < m.maxRetries,
		RetryCount: st.Count,
		Message:    why,
		Report:     buildReport(f),
	}
}

// escalate is the terminal failure path: notify the human hook and mark
// the task non-retryable. It reports through the result rather than an
// error so the caller's control flow stays uniform.
func (m *Manager) escalate(st *RetryState, f models.TaskFailure) Result {
	st.Exhausted = true
	m.notifier.NotifyRetryLimitExceeded(f.TaskID, st.Count)

	return Result{
		Action:     models.RecoveryEscalate,
		Success:    false,
		CanRetry:   false,
		RetryCount: st.Count,
		Message:    fmt.Sprintf("retry limit reached after %d attempts, escalating to operator", st.Count),
	}
}

// buildReport assembles the investigation payload: failure summary, up
// to three stack lines, and the modified file list, capped at 500 chars.
func buildReport(f models.TaskFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s failed (%s): %s", f.TaskID, f.Type, f.Error)

	if f.StackTrace != "" {
		lines := strings.Split(f.StackTrace, "\n")
		if len(lines) > stackExcerptLines {
			lines = lines[:stackExcerptLines]
		}
		b.WriteString("\nstack: ")
		b.WriteString(strings.Join(lines, "\n"))
	}
	if len(f.ModifiedFiles) > 0 {
		b.WriteString("\nmodified: ")
		b.WriteString(strings.Join(f.ModifiedFiles, ", "))
	}

	report := b.String()
	if len(report) > reportMaxLen {
		cut := reportMaxLen
		// Back up to a rune boundary so the cap never splits a rune.
		for cut > 0 && !utf8.RuneStart(report[cut]) {
			cut--
		}
		report = report[:cut]
	}
	return report
}

// RetryCount returns the retry count for a task (zero when unknown).
func (m *Manager) RetryCount(taskID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[taskID]; ok {
		return st.Count
	}
	return 0
}

// CanRetry reports whether the task still has retry budget.
func (m *Manager) CanRetry(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[taskID]
	if !ok {
		return m.maxRetries > 0
	}
	return !st.Exhausted && st.Count < m.maxRetries
}

// ResetRetryCount clears the retry state for a task. Callers must invoke
// this when the task eventually completes successfully.
func (m *Manager) ResetRetryCount(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, taskID)
}

// History returns a copy of the process-wide recovery decision history.
func (m *Manager) History() []models.RecoveryAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RecoveryAction(nil), m.history...)
}

// Failures returns a copy of the failure history for a task.
func (m *Manager) Failures(taskID string) []models.TaskFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[taskID]; ok {
		return append([]models.TaskFailure(nil), st.Failures...)
	}
	return nil
}

// Clear wipes all retry state and decision history.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*RetryState)
	m.history = nil
}
