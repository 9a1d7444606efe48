package harvest

import (
	"context"
	"time"
)

// TimerPauser implements Pauser with a real timer.
type TimerPauser struct{}

// Pause blocks for the delay or until the context ends, whichever is first.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
