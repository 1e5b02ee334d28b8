// Package hooks provides deferred calls: a function run once after a delay,
// re-armable, with at most one pending invocation.
package hooks

import (
	"sync"
	"time"
)

// Scheduler is the consumer-side view of a deferred call.
type Scheduler interface {
	// Call (re)arms the deferred function to run after d. A non-positive d
	// cancels any pending run.
	Call(d time.Duration)
}

// Deferred runs fn on its own goroutine when its timer fires.
type Deferred struct {
	fn func()

	mu    sync.Mutex
	timer *time.Timer
	armed bool
}

func NewDeferred(fn func()) *Deferred { return &Deferred{fn: fn} }

func (d *Deferred) Call(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if delay <= 0 {
		if d.timer != nil {
			d.timer.Stop()
		}
		d.armed = false
		return
	}
	d.armed = true
	if d.timer == nil {
		d.timer = time.AfterFunc(delay, d.fire)
		return
	}
	d.timer.Reset(delay)
}

// Cancel drops any pending run.
func (d *Deferred) Cancel() { d.Call(0) }

// Pending reports whether a run is armed and has not started yet.
func (d *Deferred) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Deferred) fire() {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	d.armed = false
	d.mu.Unlock()
	d.fn()
}
