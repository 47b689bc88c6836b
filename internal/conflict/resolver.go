// Package conflict implements the optimistic-concurrency guard for
// externally persisted records. It detects version mismatches at write
// time, narrows them down to field-level conflicts, and proposes ordered
// resolution strategies.
package conflict

import (
	"reflect"
	"sort"
)

// Strategy is a resolution option for a version conflict.
type Strategy string

const (
	// StrategyMerge applies non-conflicting changes on top of the
	// persisted state. Offered only when no specific conflicting fields
	// were identified.
	StrategyMerge Strategy = "merge"
	// StrategyRetry re-reads the record and replays the write.
	StrategyRetry Strategy = "retry"
	// StrategyAbort drops the write.
	StrategyAbort Strategy = "abort"
	// StrategyForce overwrites with last-write-wins semantics. Always
	// offered, always last, never chosen automatically.
	StrategyForce Strategy = "force"
)

// immutableFields are identity fields excluded from conflict detection.
var immutableFields = map[string]bool{
	"id":         true,
	"created_at": true,
}

// ConflictInfo describes a detected version conflict on a record.
type ConflictInfo struct {
	// RecordID identifies the conflicting record.
	RecordID string `json:"record_id"`
	// ExpectedVersion is the version the caller last observed.
	ExpectedVersion int64 `json:"expected_version"`
	// ActualVersion is the version currently persisted.
	ActualVersion int64 `json:"actual_version"`
	// ConflictingFields names fields changed on both sides to different
	// values since the caller's last read.
	ConflictingFields []string `json:"conflicting_fields,omitempty"`
	// ResolutionOptions is the ordered list of applicable strategies.
	ResolutionOptions []Strategy `json:"resolution_options"`
}

// VersionCheckResult is the outcome of an optimistic version check.
type VersionCheckResult struct {
	// Valid is true iff the expected and actual versions are equal.
	Valid bool `json:"valid"`
	// Conflict is populated when Valid is false.
	Conflict *ConflictInfo `json:"conflict,omitempty"`
}

// MergeResult is the outcome of an automatic merge attempt.
type MergeResult struct {
	// Merged is the persisted current state with our non-conflicting
	// changes applied.
	Merged map[string]any `json:"merged"`
	// ManualFields lists fields that require human resolution.
	ManualFields []string `json:"manual_fields,omitempty"`
	// AutoMerged is true iff no field needed manual resolution.
	AutoMerged bool `json:"auto_merged"`
}

// Resolver detects and classifies write conflicts on shared records.
// It is stateless; a single instance can serve all write paths.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// CheckVersion compares the version a writer last observed against the
// persisted version. changedFields optionally narrows the conflict to
// the fields both sides touched; pass nil when unknown.
func (r *Resolver) CheckVersion(recordID string, expected, actual int64, changedFields []string) VersionCheckResult {
	if expected == actual {
		return VersionCheckResult{Valid: true}
	}

	info := &ConflictInfo{
		RecordID:          recordID,
		ExpectedVersion:   expected,
		ActualVersion:     actual,
		ConflictingFields: append([]string(nil), changedFields...),
	}

	// Merge is only offered when no specific fields are known to
	// conflict; force is always available and always last.
	if len(changedFields) == 0 {
		info.ResolutionOptions = append(info.ResolutionOptions, StrategyMerge)
	}
	info.ResolutionOptions = append(info.ResolutionOptions, StrategyRetry, StrategyAbort, StrategyForce)

	return VersionCheckResult{Valid: false, Conflict: info}
}

// DetectFieldConflicts compares three snapshots of a record: the state
// the writer originally read, the currently persisted state, and the
// writer's intended state. A field is a true conflict only when both
// sides changed it to different values; if both sides converged on the
// same new value there is nothing to resolve. Immutable identity fields
// are always excluded. The result is sorted for determinism.
func (r *Resolver) DetectFieldConflicts(original, current, ours map[string]any) []string {
	var conflicts []string
	for field, ourValue := range ours {
		if immutableFields[field] {
			continue
		}
		origValue, currValue := original[field], current[field]

		theirsChanged := !equalValue(currValue, origValue)
		oursChanged := !equalValue(ourValue, origValue)
		diverged := !equalValue(ourValue, currValue)

		if theirsChanged && oursChanged && diverged {
			conflicts = append(conflicts, field)
		}
	}
	sort.Strings(conflicts)
	return conflicts
}

// AttemptMerge starts from the persisted current state and applies every
// one of our changes that is not a true conflict. Fields that conflict
// are left at their persisted values and reported for manual resolution.
func (r *Resolver) AttemptMerge(original, current, ours map[string]any) MergeResult {
	conflicts := r.DetectFieldConflicts(original, current, ours)
	conflictSet := make(map[string]bool, len(conflicts))
	for _, f := range conflicts {
		conflictSet[f] = true
	}

	merged := make(map[string]any, len(current)+len(ours))
	for field, value := range current {
		merged[field] = value
	}
	for field, value := range ours {
		if immutableFields[field] || conflictSet[field] {
			continue
		}
		merged[field] = value
	}

	return MergeResult{
		Merged:       merged,
		ManualFields: conflicts,
		AutoMerged:   len(conflicts) == 0,
	}
}

// equalValue compares field values, tolerating maps and slices.
func equalValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
