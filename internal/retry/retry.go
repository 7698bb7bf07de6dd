// Package retry runs an operation up to a bounded number of attempts with
// exponential backoff. Validation and not-found failures are returned
// immediately; everything else is treated as transient until the attempt
// budget is spent.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/observability"
	"github.com/tbourn/go-challenge-backend/internal/sysutil"
)

// Policy bounds the attempts and delays of one retried operation.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay after the first failure
	MaxDelay    time.Duration // cap for any single delay
}

// DefaultPolicy allows two retries at 100ms and 200ms.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// Normalize fills zero or negative fields from DefaultPolicy.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based):
// min(MaxDelay, BaseDelay * 2^(attempt-1)).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.Normalize()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// sleep waits for d or until ctx is done. Replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// policy's attempts are used up. The last error is returned unchanged.
// Cancelling ctx stops further attempts and yields a database error wrapping
// the context error.
func Do[T any](ctx context.Context, op string, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.Normalize()
	lg := sysutil.LoggerFrom(ctx).With().Str("operation", op).Logger()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, cancelled(op, err, lastErr)
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !apperr.IsRetryable(err) {
			return zero, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return zero, cancelled(op, ctx.Err(), err)
			}
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		lg.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("backoff", delay).
			Msg("retrying after failure")
		observability.RetryAttempts.WithLabelValues(op).Inc()

		if serr := sleep(ctx, delay); serr != nil {
			return zero, cancelled(op, serr, err)
		}
	}

	observability.RetryExhausted.WithLabelValues(op).Inc()
	lg.Error().Err(lastErr).Int("attempts", p.MaxAttempts).Msg("retries exhausted")
	return zero, lastErr
}

// Run is Do for operations without a result.
func Run(ctx context.Context, op string, p Policy, fn func(context.Context) error) error {
	_, err := Do(ctx, op, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func cancelled(op string, ctxErr, last error) error {
	meta := map[string]any{}
	if last != nil {
		meta["lastError"] = last.Error()
	}
	return apperr.Database("", op, ctxErr, meta)
}
