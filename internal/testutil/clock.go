package testutil

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DriveClock advances fc by step every time a goroutine is blocked on it,
// until ctx is done. The code under test only ever waits on one timer at a
// time, so one waiter is enough to make progress.
func DriveClock(ctx context.Context, fc *clockwork.FakeClock, step time.Duration) {
	go func() {
		for {
			if err := fc.BlockUntilContext(ctx, 1); err != nil {
				return
			}
			fc.Advance(step)
		}
	}()
}

// NewDrivenClock returns a fake clock that is advanced automatically while the
// test runs. The returned cancel func stops the driver.
func NewDrivenClock(step time.Duration) (*clockwork.FakeClock, context.CancelFunc) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	DriveClock(ctx, fc, step)
	return fc, cancel
}
