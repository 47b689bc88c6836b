package recovery

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// For any failure sequence, the retry count is monotonically
// non-decreasing until reset, and CanRetry flips to false exactly when
// the count reaches maxRetries.
func TestPropertyRetryCountMonotonic(t *testing.T) {
	errorTypes := []models.ErrorType{
		models.ErrorTypeRuntime, models.ErrorTypeTimeout,
		models.ErrorTypeValidation, models.ErrorTypeDependency,
		models.ErrorTypeUnknown,
	}

	rapid.Check(t, func(rt *rapid.T) {
		maxRetries := rapid.IntRange(1, 5).Draw(rt, "maxRetries")
		m := New(maxRetries, Exponential{Base: time.Second}, nil)
		t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		n := rapid.IntRange(1, 20).Draw(rt, "failures")
		prev := 0
		ts := t0
		for i := 0; i < n; i++ {
			ts = ts.Add(time.Duration(rapid.IntRange(0, 3600).Draw(rt, "gapSeconds")) * time.Second)
			et := rapid.SampledFrom(errorTypes).Draw(rt, "errorType")

			res := m.HandleFailure(models.TaskFailure{
				TaskID: "t", Error: "e", Type: et, Timestamp: ts,
			})

			count := m.RetryCount("t")
			if count < prev {
				rt.Fatalf("retry count decreased from %d to %d", prev, count)
			}
			if count > prev+1 {
				rt.Fatalf("retry count jumped from %d to %d", prev, count)
			}
			if count > maxRetries {
				rt.Fatalf("retry count %d exceeds maxRetries %d", count, maxRetries)
			}
			if m.CanRetry("t") != (count < maxRetries && res.Action != models.RecoveryEscalate) {
				rt.Fatalf("CanRetry inconsistent at count=%d/%d after %s", count, maxRetries, res.Action)
			}
			prev = count
		}

		m.ResetRetryCount("t")
		if m.RetryCount("t") != 0 {
			rt.Fatal("reset must zero the retry count")
		}
	})
}
