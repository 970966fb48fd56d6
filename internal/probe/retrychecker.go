package probe

import (
	"context"
	"time"

	"apiwatch/internal/domain"
)

// RetryChecker re-runs transient failures with exponential backoff. A
// non-transient outcome (validation failure or success) is returned as is;
// retrying a wrong status code would only delay the verdict. Retries is
// the total attempt count: Retries=2 means at most one re-run.
type RetryChecker struct {
	Inner   Checker
	Retries int
	Backoff time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, t *domain.Target) Outcome {
	attempts := r.Retries
	if attempts < 1 {
		attempts = 1
	}
	out := r.Inner.Check(ctx, t)
	for attempt := 1; attempt < attempts && out.Transient && !out.OK; attempt++ {
		select {
		case <-ctx.Done():
			return out
		case <-time.After(r.Backoff * (1 << (attempt - 1))):
		}
		out = r.Inner.Check(ctx, t)
	}
	return out
}
