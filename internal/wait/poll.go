// Package wait provides context-aware polling and page readiness detection.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the polling cadence used when callers pass zero.
const DefaultInterval = 250 * time.Millisecond

// ErrTimeout is returned by Until when the condition never held.
var ErrTimeout = errors.New("condition not met before timeout")

// Condition reports whether the awaited state holds. Errors are treated as
// "not yet" and remembered so the final timeout can explain itself.
type Condition func(ctx context.Context) (bool, error)

// Until polls cond until it returns true, the timeout elapses or ctx is done.
// A zero timeout checks exactly once.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var lastErr error
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			return timeoutError(ctx, lastErr)
		}
		ok, err := cond(pollCtx)
		if ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if timeout <= 0 {
			return timeoutError(ctx, lastErr)
		}
		if pollCtx.Err() != nil {
			return timeoutError(ctx, lastErr)
		}
	}
}

func timeoutError(parent context.Context, lastErr error) error {
	// The caller's own cancellation wins over our deadline.
	if err := parent.Err(); err != nil {
		return err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: last error: %w", ErrTimeout, lastErr)
	}
	return ErrTimeout
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
