package models

import "time"

// ErrorType classifies a task failure for recovery decisions.
type ErrorType string

const (
	// ErrorTypeRuntime is an unexpected execution failure; eligible for retry.
	ErrorTypeRuntime ErrorType = "runtime"
	// ErrorTypeTimeout is an exceeded deadline; eligible for retry.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeValidation is a semantic failure that retrying will not fix.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeDependency is a failure caused by upstream work; not transient.
	ErrorTypeDependency ErrorType = "dependency"
	// ErrorTypeUnknown is an unclassified failure; treated as transient.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Valid returns true if the error type is a known value.
func (e ErrorType) Valid() bool {
	switch e {
	case ErrorTypeRuntime, ErrorTypeTimeout, ErrorTypeValidation,
		ErrorTypeDependency, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// Transient returns true if failures of this type are worth retrying.
func (e ErrorType) Transient() bool {
	return e != ErrorTypeValidation && e != ErrorTypeDependency
}

// TaskFailure records a single failure of a task. Immutable once recorded.
type TaskFailure struct {
	// TaskID identifies the failed task.
	TaskID string `json:"task_id"`
	// Error is the failure message.
	Error string `json:"error"`
	// Type classifies the failure.
	Type ErrorType `json:"error_type"`
	// Timestamp is when the failure occurred.
	Timestamp time.Time `json:"timestamp"`
	// StackTrace is an optional stack excerpt from the failing agent.
	StackTrace string `json:"stack_trace,omitempty"`
	// ModifiedFiles lists files the failing attempt touched, if known.
	ModifiedFiles []string `json:"modified_files,omitempty"`
}

// RecoveryActionType is the kind of action the recovery manager decided on.
type RecoveryActionType string

const (
	// RecoveryRetry schedules another attempt.
	RecoveryRetry RecoveryActionType = "retry"
	// RecoveryInvestigate produces a diagnostic report instead of retrying.
	RecoveryInvestigate RecoveryActionType = "investigate"
	// RecoveryEscalate hands the task to a human decision-maker.
	RecoveryEscalate RecoveryActionType = "escalate"
	// RecoverySkip abandons the task and unblocks nothing.
	RecoverySkip RecoveryActionType = "skip"
	// RecoveryRollback reverts work done by the failing attempt.
	RecoveryRollback RecoveryActionType = "rollback"
)

// RecoveryAction is an immutable record of a recovery decision.
type RecoveryAction struct {
	// Action is the decision that was taken.
	Action RecoveryActionType `json:"action"`
	// TaskID identifies the task the decision applies to.
	TaskID string `json:"task_id"`
	// Reason is a human-readable explanation of the decision.
	Reason string `json:"reason"`
	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`
	// RelatedID optionally links a ticket or follow-up task created
	// by the decision.
	RelatedID string `json:"related_id,omitempty"`
}
