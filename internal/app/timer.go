package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// RemainingSeconds derives the whole seconds left until the shared question
// deadline. It is a pure view over the shared end timestamp: every client can
// render a counting-down clock from it, but it is never the authoritative
// end-of-question signal.
func RemainingSeconds(endMs int64, now time.Time) int {
	left := endMs - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	return int(left / 1000)
}

const defaultCountdownInterval = 100 * time.Millisecond

// Countdown re-derives the remaining seconds on a local sub-second tick and
// reports each change. It never writes to the session.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration
}

func NewCountdown(clock clockwork.Clock) *Countdown {
	return &Countdown{clock: clock, interval: defaultCountdownInterval}
}

// Run invokes fn whenever the derived remaining-seconds value changes, until
// ctx is cancelled. deadline returns the current question end in epoch ms, or
// 0 when no question is being answered; the deadline may move as the session
// advances, so it is re-read on every tick.
func (c *Countdown) Run(ctx context.Context, deadline func() int64, fn func(remaining int)) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		endMs := deadline()
		if endMs == 0 {
			last = -1
			continue
		}
		remaining := RemainingSeconds(endMs, c.clock.Now())
		if remaining != last {
			last = remaining
			fn(remaining)
		}
	}
}
