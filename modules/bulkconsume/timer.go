package bulkconsume

import (
	"time"

	"go.uber.org/atomic"
)

// Timer is a one-shot deadline observable by Range Finder without
// blocking: Expired is checked at every recursion entry and never cancels
// an in-flight probe, it only influences whether the Finder keeps probing.
type Timer struct {
	expired *atomic.Bool
	stop    chan struct{}
}

// NewTimer arms a Timer that reports expired after d has elapsed.
func NewTimer(d time.Duration) *Timer {
	t := &Timer{
		expired: atomic.NewBool(false),
		stop:    make(chan struct{}),
	}

	clock := time.NewTimer(d)
	go func() {
		select {
		case <-clock.C:
			t.expired.Store(true)
		case <-t.stop:
			clock.Stop()
		}
	}()

	return t
}

// Expired reports whether the deadline has passed.
func (t *Timer) Expired() bool {
	return t.expired.Load()
}

// Dispose releases the underlying goroutine/timer. Safe to call more than
// once; safe to call after the timer has already fired.
func (t *Timer) Dispose() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
