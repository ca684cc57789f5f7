// Package context provides small helpers for the bounded polling waits used
// throughout the coflow engine. Every blocking wait in the engine is a
// sleep-and-poll loop with a small interval, never an indefinite block.
package context

import (
	"context"
	"time"

	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
)

// DefaultPollInterval is the sleep between polling sweeps when a caller does
// not specify one. Single-digit milliseconds keeps latency low without
// pegging a CPU core.
const DefaultPollInterval = 2 * time.Millisecond

// Sleep pauses for d or until ctx is canceled, whichever comes first.
// It returns ctx.Err() when the context ended the sleep early.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll invokes cond every interval until it reports done, the timeout
// elapses, or ctx is canceled. A timeout of zero means no limit. On expiry
// Poll returns the engine's timeout failure so callers can distinguish
// "never finished" from "finished badly".
func Poll(ctx context.Context, interval, timeout time.Duration, cond func() bool) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if cond() {
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return cferrors.ErrTimeout
		}
		if err := Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
