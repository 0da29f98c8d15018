// Package debounce provides a trailing-edge trigger: repeated calls to
// Fire collapse into a single invocation of the callback once the quiet
// period elapses. Generalized from the teacher's
// sync.Buffer.FlushDebounced/debounceLoop (which does the same thing but
// couples the timer to draining a specific PathChanges buffer) so the same
// timer-reset shape can back both the session store's persistence debounce
// and the coordinator's per-id progress debounce.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Trigger invokes fn once, on a background goroutine, after period has
// elapsed with no further calls to Fire. It is safe for concurrent use.
type Trigger struct {
	mu     sync.Mutex
	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a Trigger that calls fn after period of quiet following the
// most recent Fire. The Trigger runs until Stop is called.
func New(period time.Duration, fn func()) *Trigger {
	ctx, cancel := context.WithCancel(context.Background())

	t := &Trigger{
		notify: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go t.loop(ctx, period, fn)

	return t
}

// Fire schedules (or reschedules) the trailing-edge callback.
func (t *Trigger) Fire() {
	select {
	case t.notify <- struct{}{}:
	default:
		// A pending fire hasn't been picked up by the loop yet; one
		// notification is enough to guarantee a reset.
	}
}

// Stop cancels any pending invocation and releases the background
// goroutine. fn runs on that goroutine, so if a call to fn is in progress,
// Stop waits for it to return.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.done:
		return
	default:
	}

	t.cancel()
	<-t.done
}

func (t *Trigger) loop(ctx context.Context, period time.Duration, fn func()) {
	defer close(t.done)

	timer := time.NewTimer(period)
	timer.Stop()

	active := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.notify:
			if !timer.Stop() && active {
				<-timer.C
			}

			timer.Reset(period)
			active = true

		case <-timer.C:
			active = false
			fn()
		}
	}
}
