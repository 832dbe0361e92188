// Package usage turns the once-a-minute usage measurement into remote pushes.
//
// The Debouncer coalesces "today is now N minutes" events so that at most one
// push per window reaches the remote store. The Recorder and Source model the
// monitor side: one increments the shared accumulated-minutes counter, the
// other watches it and reports absolute totals.
package usage

import (
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

// DefaultDelay is the debounce window.
const DefaultDelay = 30 * time.Second

// ErrCancelled marks a scheduled push that was superseded before it fired.
var ErrCancelled = errors.New("usage push cancelled")

// DebouncerOptions wires a Debouncer to its owner.
type DebouncerOptions struct {
	Clock quartz.Clock
	Delay time.Duration
	// Post runs a closure on the goroutine that owns the debouncer. Timer
	// callbacks never touch debouncer state directly.
	Post func(func())
	// Fire performs the push. It is called from Post'ed closures (or from
	// Update for the first value) and must not block.
	Fire   func(minutes int)
	Logger logrus.FieldLogger
}

// Debouncer keeps at most one pending push. It is not safe for concurrent use:
// Update and Stop must be called from the goroutine Post delivers to.
type Debouncer struct {
	clock  quartz.Clock
	delay  time.Duration
	post   func(func())
	fire   func(int)
	logger logrus.FieldLogger

	timer   *quartz.Timer
	pending int
	seq     uint64
	started bool
	stopped bool
}

// NewDebouncer returns a Debouncer. Zero Clock and Delay fall back to the
// real clock and DefaultDelay; a nil Logger to the logrus standard logger.
func NewDebouncer(opts DebouncerOptions) *Debouncer {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Debouncer{
		clock:  opts.Clock,
		delay:  opts.Delay,
		post:   opts.Post,
		fire:   opts.Fire,
		logger: opts.Logger.WithField("component", "debouncer"),
	}
}

// Update records a new absolute minute count. The first update after
// construction pushes immediately; later ones replace any pending push with
// one that fires after the delay.
func (d *Debouncer) Update(minutes int) {
	if d.stopped {
		return
	}
	d.cancelPending()

	if !d.started {
		d.started = true
		d.fire(minutes)
		return
	}

	seq := d.seq
	d.pending = minutes
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.post(func() { d.fireIfCurrent(seq, minutes) })
	}, "usage", "debounce")
}

// Pending reports whether a push is scheduled and the value it would send.
func (d *Debouncer) Pending() (int, bool) {
	return d.pending, d.timer != nil
}

// Stop cancels any pending push. Later updates are ignored.
func (d *Debouncer) Stop() {
	d.cancelPending()
	d.stopped = true
}

func (d *Debouncer) cancelPending() {
	d.seq++
	if d.timer == nil {
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.logger.WithError(ErrCancelled).WithField("minutes", d.pending).Debug("superseded pending usage push")
}

// fireIfCurrent runs on the owner. A timer that fired after being superseded
// finds a newer seq and is dropped.
func (d *Debouncer) fireIfCurrent(seq uint64, minutes int) {
	if seq != d.seq {
		d.logger.WithError(ErrCancelled).WithField("minutes", minutes).Debug("dropped stale usage push")
		return
	}
	d.timer = nil
	d.fire(minutes)
}
