// Package retry implements the bounded fixed-interval polling used while
// waiting for remote state transitions (task completion, VM stop, disk
// definitions appearing in a VM config).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the attempt budget is exhausted before the
// condition is met.
var ErrTimeout = errors.New("attempt budget exhausted")

// Poll invokes check up to attempts times, sleeping interval between tries.
// check reports done=true to stop polling successfully; a non-nil error stops
// polling immediately and is returned as-is. Context cancellation is respected
// while sleeping.
func Poll(ctx context.Context, interval time.Duration, attempts int, check func() (bool, error)) error {
	if attempts < 1 {
		return fmt.Errorf("invalid attempt budget %d", attempts)
	}

	for attempt := 0; attempt < attempts; attempt++ {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("cancelled after %d attempts: %w", attempt+1, ctx.Err())
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("condition not met after %d attempts: %w", attempts, ErrTimeout)
}
