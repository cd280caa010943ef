// Package poll provides the bounded wait primitives the scraping core uses
// wherever the remote UI only converges eventually: settle delays after
// state-changing actions and attempt-capped polls awaiting an observable
// change. Every loop here terminates; there are no unbounded waits.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bussola-backend/lib/uidriver"
)

// ErrTimeout reports that a condition did not converge within the
// configured attempt budget.
var ErrTimeout = errors.New("poll timed out")

// Config bounds one poll loop.
type Config struct {
	Attempts int
	Interval time.Duration
}

// Settle waits a fixed duration, honoring ctx cancellation.
func Settle(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Until re-evaluates cond every interval until it reports true, fails with
// a non-transient error, or the attempt budget runs out. Transient driver
// errors (stale references, elements not yet present) count as "not yet".
func Until(ctx context.Context, cfg Config, cond func(ctx context.Context) (bool, error)) error {
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			if err := Settle(ctx, cfg.Interval); err != nil {
				return err
			}
		}
		ok, err := cond(ctx)
		if err != nil {
			if uidriver.Transient(err) {
				continue
			}
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrTimeout, cfg.Attempts)
}

// WithRetry runs action followed by probe. When the probe (or the action
// itself) fails with a transient driver error, the whole action+probe pair
// is retried from the top, up to attempts times total. The last error is
// returned once the budget is exhausted; non-transient errors escalate
// immediately.
func WithRetry(ctx context.Context, attempts int, action, probe func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := action(ctx)
		if err == nil && probe != nil {
			err = probe(ctx)
		}
		if err == nil {
			return nil
		}
		if !uidriver.Transient(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
