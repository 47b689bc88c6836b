package recovery

import "time"

// BackoffPolicy computes the minimum time that must elapse before the
// retry with the given attempt number is permitted. Implementations must
// be pure so decisions stay reproducible in tests.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay with every attempt: base * 2^attempt.
type Exponential struct {
	// Base is the window for attempt zero.
	Base time.Duration
}

// Delay returns base * 2^attempt, clamped to avoid overflow.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 40 {
		attempt = 40
	}
	d := e.Base << uint(attempt)
	if d < e.Base {
		// Shifted past the top of the range.
		return 1<<63 - 1
	}
	return d
}
