// Package actor provides the single-writer execution loop that owns all
// mutable client state. Closures posted to an Actor run one at a time, in
// order, on a dedicated goroutine.
package actor

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Do once the actor has been closed.
var ErrStopped = errors.New("actor stopped")

// Actor serializes closures onto one goroutine.
type Actor struct {
	inbox  chan func()
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// New starts an actor that runs until ctx is done or Close is called.
func New(ctx context.Context) *Actor {
	ctx, cancel := context.WithCancel(ctx)
	a := &Actor{
		inbox:  make(chan func(), 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go a.loop(ctx)
	return a
}

func (a *Actor) loop(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.inbox:
			fn()
		}
	}
}

// Post enqueues fn without waiting for it to run. Closures posted after the
// actor stopped are dropped.
func (a *Actor) Post(fn func()) {
	select {
	case a.inbox <- fn:
	case <-a.done:
	}
}

// Do runs fn on the actor and waits for it to return. It must not be called
// from a closure already running on the same actor.
func (a *Actor) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case a.inbox <- wrapped:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-a.done:
		// the loop may have exited between dequeuing and finishing
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop and waits for the running closure, if any, to return.
func (a *Actor) Close() {
	a.once.Do(a.cancel)
	<-a.done
}

// Done is closed once the loop has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}
