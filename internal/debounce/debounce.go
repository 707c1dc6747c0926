// Package debounce coalesces bursts of triggers into one trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once, wait after the most recent Trigger. Triggers that
// arrive inside the window reset it; nothing runs on the leading edge.
type Debouncer struct {
	wait time.Duration
	fn   func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	stopped bool
}

// New returns a Debouncer for fn. A non-positive wait defaults to 200ms.
func New(wait time.Duration, fn func()) *Debouncer {
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}
	return &Debouncer{wait: wait, fn: fn}
}

// Trigger schedules fn, cancelling any call still waiting.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.wait, func() { d.fire(gen) })
}

// Cancel drops a pending call without stopping the debouncer.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop cancels a pending call and ignores every later Trigger.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}

// Flush runs a pending call immediately on the calling goroutine.
// It reports whether a call was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	d.cancelLocked()
	d.mu.Unlock()

	d.fn()
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	// A timer that already fired is still waiting on mu; bumping gen
	// makes it a no-op.
	d.gen++
	d.pending = false
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
