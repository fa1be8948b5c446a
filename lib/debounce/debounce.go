// Package debounce collapses bursts of calls into a single execution that
// runs once the calls have been quiet for a fixed wait.
package debounce

import (
	"sync"
	"time"
)

// Timer is the handle returned by a Clock. Only Stop is needed.
type Timer interface {
	Stop() bool
}

// Clock schedules f to run after d on its own goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithImmediate runs fn synchronously on the first call of a quiet period
// and suppresses the trailing execution for that window.
func WithImmediate() Option {
	return func(d *Debouncer) { d.immediate = true }
}

// WithClock replaces the wall clock used for scheduling.
func WithClock(c Clock) Option {
	return func(d *Debouncer) { d.clock = c }
}

// Debouncer owns at most one pending timer. Every Call stops the previous
// timer and starts a new wait window. Timers that fire after being
// superseded are ignored through the generation counter.
type Debouncer struct {
	fn        func()
	wait      time.Duration
	immediate bool
	clock     Clock

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

func New(fn func(), wait time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{fn: fn, wait: wait, clock: realClock{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call is the debounced invoker.
func (d *Debouncer) Call() {
	d.mu.Lock()
	callNow := d.immediate && d.timer == nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.wait, func() { d.fire(gen) })
	d.mu.Unlock()

	if callNow {
		d.fn()
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	if !d.immediate {
		d.fn()
	}
}

// Stop cancels the pending execution, if any. The next Call starts a fresh
// quiet period.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a wait window is open.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
