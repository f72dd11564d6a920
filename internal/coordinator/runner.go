// internal/coordinator/runner.go
package coordinator

import (
	"context"
	"errors"
	"time"
)

// Run polls immediately, then on every interval, and handles midnight
// independently of polling. One goroutine per device. No overlap. No
// retries beyond the next tick. Updates are sent on out until ctx ends.
func (c *Coordinator) Run(ctx context.Context, out chan<- Update) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	midnight := time.NewTimer(c.untilMidnight(c.now()))
	defer midnight.Stop()

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	emit := func(u Update) {
		if u.Err != nil && !errors.Is(u.Err, ErrFirstContact) && !errors.Is(u.Err, context.Canceled) {
			c.log.Error().Err(u.Err).Msg("cycle failed")
		}
		select {
		case out <- u:
		case <-ctx.Done():
		}
	}

	emit(c.cycle(ctx))

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			emit(c.cycle(ctx))

		case <-midnight.C:
			now := c.now()
			emit(c.Rollover(now))
			midnight.Reset(c.untilMidnight(now))

		case <-secTicker.C:
			// Tick 1 Hz while offline.
			c.mu.Lock()
			c.tracker.Tick(time.Second)
			c.mu.Unlock()
		}
	}
}
