package retry

import (
	"context"
	"time"

	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// Linear waits attempt * BaseDelay before the next try.
	Linear Backoff = iota
	// Exponential waits BaseDelay * 2^(attempt-1) before the next try.
	Exponential
)

// Policy is a reusable retry/backoff configuration shared by every external
// call site. Classification of retryable vs terminal errors lives in
// pkg/errors; the policy only decides how often and how long to wait.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     Backoff
	MaxDelay    time.Duration
}

// Delay returns how long to wait after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch p.Backoff {
	case Exponential:
		d = p.BaseDelay << (attempt - 1)
	default:
		d = time.Duration(attempt) * p.BaseDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do invokes fn until it succeeds, returns a terminal error, or the policy's
// attempts are exhausted. Exhaustion is converted into a RETRY_EXHAUSTED error
// wrapping the last underlying failure.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !pkgerrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, policy.Delay(attempt)); err != nil {
			return err
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeRetryExhausted, lastErr, lastErr.Error())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
