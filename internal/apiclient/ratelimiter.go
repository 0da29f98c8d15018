package apiclient

import (
	"context"
	"time"
)

// slidingWindowLimiter enforces at most limit requests per rolling window,
// FIFO, per spec.md §4.3: "on each request, drop timestamps older than the
// window; if count >= limit, sleep until the oldest timestamp ages out;
// otherwise record a new timestamp and dispatch."
//
// The critical section is held for the full duration of any sleep, which is
// what gives callers FIFO ordering: the lock is a 1-buffered channel, and Go
// hands a value sent on a channel to the longest-waiting receiver first, so
// contenders are released in arrival order rather than racing each other
// after a wake-up.
type slidingWindowLimiter struct {
	mu         chan struct{} // 1-buffered channel used as a mutex with no lock-ordering surprises under select
	timestamps []time.Time
	limit      int
	window     time.Duration
	nowFunc    func() time.Time
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

func newSlidingWindowLimiter(limit int, window time.Duration) *slidingWindowLimiter {
	l := &slidingWindowLimiter{
		mu:        make(chan struct{}, 1),
		limit:     limit,
		window:    window,
		nowFunc:   time.Now,
		sleepFunc: timeSleep,
	}
	l.mu <- struct{}{}

	return l
}

// Wait blocks until a slot opens in the window, or ctx is done first.
func (l *slidingWindowLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-l.mu:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { l.mu <- struct{}{} }()

	for {
		now := l.nowFunc()
		l.prune(now)

		if len(l.timestamps) < l.limit {
			l.timestamps = append(l.timestamps, now)
			return nil
		}

		wait := l.window - now.Sub(l.timestamps[0])
		if wait < 0 {
			wait = 0
		}

		if err := l.sleepFunc(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops timestamps that have aged out of the window.
func (l *slidingWindowLimiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.timestamps) && now.Sub(l.timestamps[cut]) >= l.window {
		cut++
	}

	l.timestamps = l.timestamps[cut:]
}

// timeSleep waits d, honoring ctx cancellation. Mirrors the teacher's
// graph.timeSleep so tests can substitute a deterministic sleepFunc.
func timeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}

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
