// Package loop drives the orchestration cycle: on a fixed interval it
// detects stalls, sweeps timed-out assignments, and hands the next
// ready task to the assignment router. The tick is the only driver of
// scheduler mutation; ticks never overlap and tick errors never kill
// the loop.
package loop

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/taskstore"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// errRingCap bounds the retained tick-error history.
const errRingCap = 10

// Router is the assignment routing collaborator the loop consumes.
type Router interface {
	// ActiveCount returns the number of live assignments.
	ActiveCount() int
	// Route hands a task to an agent slot; an error is a rejection.
	Route(a models.Assignment) error
	// CheckTimeouts returns task IDs whose ack deadline has passed.
	CheckTimeouts() []string
}

// EventType classifies loop state-change notifications.
type EventType string

const (
	EventTick     EventType = "tick"
	EventAssigned EventType = "assigned"
	EventWarning  EventType = "warning"
	EventProgress EventType = "progress"
	EventPaused   EventType = "paused"
	EventResumed  EventType = "resumed"
	EventStopped  EventType = "stopped"
)

// Event is a state-change notification delivered to listeners.
type Event struct {
	Type      EventType `json:"type"`
	Iteration int       `json:"iteration"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is a snapshot of the loop's state.
type Summary struct {
	Running        bool      `json:"running"`
	Paused         bool      `json:"paused"`
	Iteration      int       `json:"iteration"`
	LastProgressAt time.Time `json:"last_progress_at"`
	LastErrors     []string  `json:"last_errors,omitempty"`
	Processed      int       `json:"processed"`
	Completed      int       `json:"completed"`
	Failed         int       `json:"failed"`
}

// Options configures a Loop.
type Options struct {
	// PollInterval is the tick period.
	PollInterval time.Duration
	// MaxIterations stops the loop after this many ticks; 0 = unbounded.
	MaxIterations int
	// AutoAssign enables pulling ready tasks each tick. When false the
	// loop only watches for stalls and timeouts; use Step for manual
	// stepping.
	AutoAssign bool
	// DeadlockThreshold is how long the loop tolerates zero progress
	// while work is outstanding before warning. 0 disables the check.
	DeadlockThreshold time.Duration
	// Logf receives debug log lines.
	Logf func(format string, args ...interface{})
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Loop is the top-level control loop. Construct one per run and pass it
// by reference; there is no package-level shared instance.
type Loop struct {
	store  *taskstore.Store
	router Router
	opts   Options

	mu             sync.Mutex
	running        bool
	paused         bool
	iteration      int
	lastProgressAt time.Time
	lastErrors     []string
	processed      int
	completed      int
	failed         int
	listeners      map[int]func(Event)
	nextListener   int
	cancel         context.CancelFunc
	done           chan struct{}

	// ticking enforces that ticks never overlap, including manual Step
	// calls racing the timer.
	ticking atomic.Bool

	now  func() time.Time
	logf func(format string, args ...interface{})
}

// New creates a Loop over the given store and router.
func New(store *taskstore.Store, router Router, opts Options) *Loop {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	l := &Loop{
		store:     store,
		router:    router,
		opts:      opts,
		listeners: make(map[int]func(Event)),
		now:       time.Now,
		logf:      func(string, ...interface{}) {},
	}
	if opts.Clock != nil {
		l.now = opts.Clock
	}
	if opts.Logf != nil {
		l.logf = opts.Logf
	}
	return l
}

// Start begins ticking. Returns an error if the loop is already running.
// Stop halts future ticks; a tick already in flight completes normally.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("loop already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.lastProgressAt = l.now()
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				l.markStopped("context cancelled")
				return
			case <-ticker.C:
				if !l.Step() {
					l.markStopped("max iterations reached")
					return
				}
			}
		}
	}()
	l.logf("[loop] started (interval=%s, autoAssign=%v, maxIterations=%d)",
		l.opts.PollInterval, l.opts.AutoAssign, l.opts.MaxIterations)
	return nil
}

// Stop halts future ticks and waits for the in-flight tick, if any, to
// finish. In-flight assignments keep running and report back normally.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (l *Loop) markStopped(reason string) {
	l.mu.Lock()
	l.running = false
	iteration := l.iteration
	l.mu.Unlock()

	l.logf("[loop] stopped: %s", reason)
	l.notify(Event{Type: EventStopped, Iteration: iteration, Message: reason, Timestamp: l.now()})
}

// Pause suspends assignment while keeping the timer alive, so stall
// detection and timeout sweeps continue and in-flight work is unaffected.
func (l *Loop) Pause() {
	l.mu.Lock()
	already := l.paused
	l.paused = true
	iteration := l.iteration
	l.mu.Unlock()

	if !already {
		l.logf("[loop] paused")
		l.notify(Event{Type: EventPaused, Iteration: iteration, Message: "assignment paused", Timestamp: l.now()})
	}
}

// Resume reenables assignment after a pause.
func (l *Loop) Resume() {
	l.mu.Lock()
	already := !l.paused
	l.paused = false
	iteration := l.iteration
	l.mu.Unlock()

	if !already {
		l.logf("[loop] resumed")
		l.notify(Event{Type: EventResumed, Iteration: iteration, Message: "assignment resumed", Timestamp: l.now()})
	}
}

// Step executes one tick and reports whether the loop should continue.
// Used by the timer and for manual stepping when auto-assign is off.
// Overlapping ticks are skipped, never interleaved.
func (l *Loop) Step() bool {
	if !l.ticking.CompareAndSwap(false, true) {
		// A tick is still in flight; skip this fire.
		return true
	}
	defer l.ticking.Store(false)

	defer func() {
		if r := recover(); r != nil {
			l.recordError(fmt.Sprintf("tick panic: %v", r))
		}
	}()

	l.checkDeadlock()
	l.sweepTimeouts()

	l.mu.Lock()
	paused := l.paused
	l.mu.Unlock()
	if paused {
		return true
	}

	if l.opts.AutoAssign {
		l.assignNext()
	}

	l.mu.Lock()
	l.iteration++
	iteration := l.iteration
	maxReached := l.opts.MaxIterations > 0 && iteration >= l.opts.MaxIterations
	l.mu.Unlock()

	l.notify(Event{Type: EventTick, Iteration: iteration, Message: "tick complete", Timestamp: l.now()})
	return !maxReached
}

// checkDeadlock warns when no completion has been recorded for longer
// than the threshold while the store still reports in-flight or failed
// work. The warning is observable, never fatal.
func (l *Loop) checkDeadlock() {
	if l.opts.DeadlockThreshold <= 0 {
		return
	}

	stats := l.store.Stats()
	if stats.Running == 0 && stats.Failed == 0 {
		return
	}

	l.mu.Lock()
	stalled := l.now().Sub(l.lastProgressAt) > l.opts.DeadlockThreshold
	iteration := l.iteration
	l.mu.Unlock()

	if stalled {
		msg := fmt.Sprintf("possible deadlock: no progress for over %s with %d running, %d failed, %d live assignments",
			l.opts.DeadlockThreshold, stats.Running, stats.Failed, l.router.ActiveCount())
		l.logf("[loop] %s", msg)
		l.notify(Event{Type: EventWarning, Iteration: iteration, Message: msg, Timestamp: l.now()})
	}
}

// sweepTimeouts surfaces overdue assignments as warnings. The loop does
// not resubmit; retry or escalation is the caller's decision.
func (l *Loop) sweepTimeouts() {
	l.mu.Lock()
	iteration := l.iteration
	l.mu.Unlock()

	for _, taskID := range l.router.CheckTimeouts() {
		msg := fmt.Sprintf("assignment for task %s passed its ack deadline", taskID)
		l.logf("[loop] %s", msg)
		l.notify(Event{Type: EventWarning, Iteration: iteration, TaskID: taskID, Message: msg, Timestamp: l.now()})
	}
}

// assignNext pulls the next ready task and hands it to the router. A
// nil task and a router rejection are both logged non-events.
func (l *Loop) assignNext() {
	next := l.store.Next()
	if next == nil {
		return
	}

	a := models.Assignment{
		ID:       uuid.NewString(),
		TaskID:   next.ID,
		Title:    next.Title,
		Priority: next.Priority,
	}
	if err := l.router.Route(a); err != nil {
		l.logf("[loop] router rejected task %s: %v", next.ID, err)
		return
	}

	if err := l.store.Start(next.ID); err != nil {
		l.recordError(fmt.Sprintf("start task %s: %v", next.ID, err))
		return
	}

	l.mu.Lock()
	l.processed++
	iteration := l.iteration
	l.mu.Unlock()

	l.logf("[loop] assigned task %s (%s)", next.ID, next.Title)
	l.notify(Event{Type: EventAssigned, Iteration: iteration, TaskID: next.ID,
		Message: fmt.Sprintf("task assigned: %s", next.Title), Timestamp: l.now()})
}

// RecordCompletion reports a completion or failure back to the loop: it
// releases the router slot via the Completer interface if available,
// refreshes the progress timestamp used by stall detection, and updates
// counters. The task store transition itself belongs to the reporter.
func (l *Loop) RecordCompletion(taskID string, success bool) {
	if c, ok := l.router.(interface{ Complete(string) }); ok {
		c.Complete(taskID)
	}

	l.mu.Lock()
	l.lastProgressAt = l.now()
	if success {
		l.completed++
	} else {
		l.failed++
	}
	iteration := l.iteration
	l.mu.Unlock()

	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	l.logf("[loop] task %s %s", taskID, outcome)
	l.notify(Event{Type: EventProgress, Iteration: iteration, TaskID: taskID,
		Message: fmt.Sprintf("task %s: %s", outcome, taskID), Timestamp: l.now()})
}

// OnStateChange registers a listener invoked synchronously after each
// tick and explicit mutation. The returned function unsubscribes it.
// A listener that panics is isolated and logged, never propagated.
func (l *Loop) OnStateChange(fn func(Event)) func() {
	l.mu.Lock()
	id := l.nextListener
	l.nextListener++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// notify delivers an event to all listeners, isolating panics per
// listener so one bad observer cannot break the others or the loop.
func (l *Loop) notify(event Event) {
	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[loop] listener panic: %v", r)
				}
			}()
			fn(event)
		}()
	}
}

// recordError appends a tick error to the bounded ring.
func (l *Loop) recordError(msg string) {
	l.mu.Lock()
	l.lastErrors = append(l.lastErrors, msg)
	if len(l.lastErrors) > errRingCap {
		l.lastErrors = l.lastErrors[len(l.lastErrors)-errRingCap:]
	}
	l.mu.Unlock()
	l.logf("[loop] tick error: %s", msg)
}

// Summary returns a snapshot of the loop state.
func (l *Loop) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Summary{
		Running:        l.running,
		Paused:         l.paused,
		Iteration:      l.iteration,
		LastProgressAt: l.lastProgressAt,
		LastErrors:     append([]string(nil), l.lastErrors...),
		Processed:      l.processed,
		Completed:      l.completed,
		Failed:         l.failed,
	}
}
