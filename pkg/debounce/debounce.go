// Package debounce collapses bursts of calls into one.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the most recently submitted function once calls have been
// quiet for wait, and never later than maxWait after the first call of a
// burst.
type Debouncer struct {
	wait    time.Duration
	maxWait time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	fn      func()
	first   time.Time
	gen     uint64
	stopped bool
	now     func() time.Time
}

// New creates a Debouncer. maxWait <= 0 means no upper bound.
func New(wait, maxWait time.Duration) *Debouncer {
	return &Debouncer{wait: wait, maxWait: maxWait, now: time.Now}
}

// Call schedules fn, replacing any pending function.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := d.now()
	if d.fn == nil {
		d.first = now
	}
	d.fn = fn

	delay := d.wait
	if d.maxWait > 0 {
		if remaining := d.first.Add(d.maxWait).Sub(now); remaining < delay {
			delay = max(remaining, 0)
		}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		// superseded by a later Call
		d.mu.Unlock()
		return
	}
	fn := d.take()
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// take must be called with mu held.
func (d *Debouncer) take() func() {
	fn := d.fn
	d.fn = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return fn
}

// Flush runs the pending function now, if any, on the calling goroutine.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.take()
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

// Stop drops the pending function. Later calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.take()
	d.stopped = true
}
