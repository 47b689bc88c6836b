// Package taskstore holds the shared backlog of work items and their
// dependency edges. It owns the per-task state machine, computes
// readiness, enforces the concurrency cap, and rejects insertions that
// would make the dependency graph cyclic.
package taskstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/toposort"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// Store is the single-owner task store. All mutation goes through its
// methods; callers receive clones and can never alias internal state.
type Store struct {
	mu sync.RWMutex
	// tasks maps task ID to the task itself.
	tasks map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	// Edges may reference tasks not yet inserted; they stay inert until
	// the target exists.
	edges map[string][]string
	// seq records insertion order, used for tie-breaking and for the
	// deterministic execution-order query.
	seq     map[string]int
	nextSeq int
	// running counts tasks currently in the running state.
	running int
	// maxConcurrent bounds how many tasks may run simultaneously.
	maxConcurrent int
	now           func() time.Time
	logf          func(format string, args ...interface{})
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects a clock, used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger injects a debug log function.
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(s *Store) { s.logf = logf }
}

// New creates an empty store. maxConcurrent bounds simultaneous running
// tasks; values below 1 are coerced to 1.
func New(maxConcurrent int, opts ...Option) *Store {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	s := &Store{
		tasks:         make(map[string]*models.Task),
		edges:         make(map[string][]string),
		seq:           make(map[string]int),
		maxConcurrent: maxConcurrent,
		now:           time.Now,
		logf:          func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add inserts a task. The task enters as pending (or ready, if it has no
// unmet dependencies). Returns ErrAlreadyExists for duplicate IDs and
// ErrCircularDependency if the insertion would close a cycle; on any
// rejection the store is unchanged.
func (s *Store) Add(t *models.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("task must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s: %w", t.ID, ErrAlreadyExists)
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return fmt.Errorf("task %s depends on itself: %w", t.ID, ErrCircularDependency)
		}
	}

	// Cycle check before commit. The store is acyclic, so any new cycle
	// must pass through the task being inserted: either via its own
	// dependency edges, or via a previously dangling edge that this
	// insertion makes live.
	if s.wouldCycle(t.ID, t.DependsOn) {
		return fmt.Errorf("task %s: %w", t.ID, ErrCircularDependency)
	}

	stored := t.Clone()
	stored.Status = models.TaskStatusPending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}

	s.tasks[stored.ID] = stored
	s.edges[stored.ID] = append([]string(nil), stored.DependsOn...)
	s.seq[stored.ID] = s.nextSeq
	s.nextSeq++

	s.refreshReadiness(stored)
	s.logf("[taskstore] added task %s (priority=%d, deps=%v, status=%s)",
		stored.ID, stored.Priority, stored.DependsOn, stored.Status)
	return nil
}

// AddAll inserts tasks in order, stopping at the first rejection.
// Forward references within the batch are allowed: a task may list a
// dependency that appears later in the slice.
func (s *Store) AddAll(tasks []*models.Task) error {
	for _, t := range tasks {
		if err := s.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// wouldCycle reports whether inserting newID with the given dependency
// edges would leave the graph unsortable. The prospective graph is
// handed to the topological sorter and only the error is consulted;
// dangling edge targets are harmless extra nodes. Caller must hold s.mu.
func (s *Store) wouldCycle(newID string, deps []string) bool {
	edges := make([]toposort.Edge, 0, len(s.edges)+len(deps)+1)
	appendEdges := func(id string, ds []string) {
		if len(ds) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			return
		}
		for _, dep := range ds {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}
	for id, ds := range s.edges {
		appendEdges(id, ds)
	}
	appendEdges(newID, deps)

	_, err := toposort.Toposort(edges)
	return err != nil
}

// refreshReadiness promotes a pending task to ready when every
// dependency exists and is completed. Caller must hold s.mu.
func (s *Store) refreshReadiness(t *models.Task) {
	if t.Status != models.TaskStatusPending {
		return
	}
	for _, dep := range s.edges[t.ID] {
		d, exists := s.tasks[dep]
		if !exists || d.Status != models.TaskStatusCompleted {
			return
		}
	}
	t.Status = models.TaskStatusReady
}

// Next returns the next task eligible for assignment: the ready task
// with the lowest priority number, ties broken by insertion order.
// Returns nil (not an error) when nothing is ready or the concurrency
// cap is reached; the cap is the system's admission control.
func (s *Store) Next() *models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.running >= s.maxConcurrent {
		s.logf("[taskstore] admission control: %d/%d running, no task returned",
			s.running, s.maxConcurrent)
		return nil
	}

	var best *models.Task
	for _, t := range s.tasks {
		if t.Status != models.TaskStatusReady {
			continue
		}
		if best == nil ||
			t.Priority < best.Priority ||
			(t.Priority == best.Priority && s.seq[t.ID] < s.seq[best.ID]) {
			best = t
		}
	}
	return best.Clone()
}

// Start transitions a task from ready to running. Returns ErrNotReady
// if any dependency is not completed and ErrInvalidTransition for tasks
// that are already running or terminal.
func (s *Store) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	switch t.Status {
	case models.TaskStatusReady:
		// Eligible.
	case models.TaskStatusPending:
		return fmt.Errorf("task %s has incomplete dependencies: %w", id, ErrNotReady)
	case models.TaskStatusBlocked:
		return fmt.Errorf("task %s is blocked (%s): %w", id, t.BlockedReason, ErrNotReady)
	default:
		return fmt.Errorf("task %s is %s: %w", id, t.Status, ErrInvalidTransition)
	}

	started := s.now()
	t.Status = models.TaskStatusRunning
	t.StartedAt = &started
	s.running++
	s.logf("[taskstore] started task %s (%d/%d running)", id, s.running, s.maxConcurrent)
	return nil
}

// Complete transitions a running task to completed and recomputes
// readiness for its direct dependents.
func (s *Store) Complete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if t.Status != models.TaskStatusRunning {
		return fmt.Errorf("task %s is %s, not running: %w", id, t.Status, ErrInvalidTransition)
	}

	done := s.now()
	t.Status = models.TaskStatusCompleted
	t.CompletedAt = &done
	s.running--

	for _, depID := range s.dependentsLocked(id) {
		s.refreshReadiness(s.tasks[depID])
	}
	s.logf("[taskstore] completed task %s", id)
	return nil
}

// Fail transitions a running task to failed with the given reason.
// All direct dependents move to blocked rather than lingering as
// pending, so stalled work stays visible.
func (s *Store) Fail(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if t.Status != models.TaskStatusRunning {
		return fmt.Errorf("task %s is %s, not running: %w", id, t.Status, ErrInvalidTransition)
	}

	failed := s.now()
	t.Status = models.TaskStatusFailed
	t.Error = reason
	t.CompletedAt = &failed
	s.running--

	for _, depID := range s.dependentsLocked(id) {
		dep := s.tasks[depID]
		if dep.Status == models.TaskStatusPending || dep.Status == models.TaskStatusReady {
			dep.Status = models.TaskStatusBlocked
			dep.BlockedReason = "dependency_failed:" + id
			s.logf("[taskstore] blocked task %s (depends on failed task %s)", depID, id)
		}
	}
	s.logf("[taskstore] failed task %s: %s", id, reason)
	return nil
}

// Cancel moves a non-terminal task to cancelled.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("task %s is already %s: %w", id, t.Status, ErrInvalidTransition)
	}
	if t.Status == models.TaskStatusRunning {
		s.running--
	}
	cancelled := s.now()
	t.Status = models.TaskStatusCancelled
	t.CompletedAt = &cancelled
	return nil
}

// Retry returns a failed task to the pool. It becomes ready if its
// dependencies are completed, pending otherwise. Dependents blocked by
// this task's failure return to pending.
func (s *Store) Retry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if t.Status != models.TaskStatusFailed {
		return fmt.Errorf("task %s is %s, not failed: %w", id, t.Status, ErrInvalidTransition)
	}
	t.Status = models.TaskStatusPending
	t.Error = ""
	t.StartedAt = nil
	t.CompletedAt = nil
	s.refreshReadiness(t)

	for _, depID := range s.dependentsLocked(id) {
		dep := s.tasks[depID]
		if dep.Status == models.TaskStatusBlocked && dep.BlockedReason == "dependency_failed:"+id {
			dep.Status = models.TaskStatusPending
			dep.BlockedReason = ""
			s.logf("[taskstore] unblocked task %s (dependency %s retried)", depID, id)
		}
	}
	return nil
}

// Get returns a copy of the task with the given ID, or nil.
func (s *Store) Get(id string) *models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id].Clone()
}

// Tasks returns copies of all tasks in insertion order.
func (s *Store) Tasks() []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sortBySeq(out, s.seq)
	return out
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (s *Store) Dependents(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dependentsLocked(id)
}

// dependentsLocked returns direct dependents in insertion order.
// Caller must hold s.mu.
func (s *Store) dependentsLocked(id string) []string {
	var out []string
	for _, t := range s.tasks {
		for _, dep := range s.edges[t.ID] {
			if dep == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	sortIDsBySeq(out, s.seq)
	return out
}

// Stats is a snapshot of task counts per status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`
	Cancelled int `json:"cancelled"`
}

// Active reports whether any tasks are still in a workable, non-terminal
// state. Used by the loop's stall detection.
func (st Stats) Active() bool {
	return st.Running > 0 || st.Ready > 0 || st.Pending > 0
}

// Stats returns the current task counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.tasks)}
	for _, t := range s.tasks {
		switch t.Status {
		case models.TaskStatusPending:
			st.Pending++
		case models.TaskStatusReady:
			st.Ready++
		case models.TaskStatusRunning:
			st.Running++
		case models.TaskStatusCompleted:
			st.Completed++
		case models.TaskStatusFailed:
			st.Failed++
		case models.TaskStatusBlocked:
			st.Blocked++
		case models.TaskStatusCancelled:
			st.Cancelled++
		}
	}
	return st
}

// ExecutionOrder returns a full topological ordering of all task IDs,
// with dependencies before dependents. Ties between unblocked tasks go
// to the earliest-inserted one, so the result is a pure function of the
// insertion sequence. Used for diagnostics and dry-run planning.
func (s *Store) ExecutionOrder() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indegree := make(map[string]int, len(s.tasks))
	dependents := make(map[string][]string, len(s.tasks))
	for id := range s.tasks {
		indegree[id] = 0
	}
	for id := range s.tasks {
		for _, dep := range s.edges[id] {
			if _, exists := s.tasks[dep]; exists {
				indegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	// Kahn's algorithm over a frontier kept in insertion order: each
	// round emits the unblocked task with the smallest seq.
	frontier := make([]string, 0, len(s.tasks))
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}
	sortIDsBySeq(frontier, s.seq)

	order := make([]string, 0, len(s.tasks))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		released := false
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
				released = true
			}
		}
		if released {
			sortIDsBySeq(frontier, s.seq)
		}
	}

	if len(order) != len(s.tasks) {
		return nil, fmt.Errorf("execution order: dependency cycle among remaining tasks")
	}
	return order, nil
}

// MaxConcurrent returns the concurrency cap.
func (s *Store) MaxConcurrent() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxConcurrent
}

// Reset clears all tasks. Intended for test isolation and explicit
// teardown; there is no package-level shared store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*models.Task)
	s.edges = make(map[string][]string)
	s.seq = make(map[string]int)
	s.nextSeq = 0
	s.running = 0
}

func sortBySeq(tasks []*models.Task, seq map[string]int) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return seq[tasks[i].ID] < seq[tasks[j].ID]
	})
}

func sortIDsBySeq(ids []string, seq map[string]int) {
	sort.SliceStable(ids, func(i, j int) bool {
		return seq[ids[i]] < seq[ids[j]]
	})
}
