// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package host

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadySettled is returned when a Deferred is resolved or rejected twice.
	ErrAlreadySettled = errors.New("host: deferred already settled")

	// ErrRejected is used when Reject is called with a nil error.
	ErrRejected = errors.New("host: deferred rejected")
)

// Deferred is a promise-like completion handle. It settles exactly once.
// Waiters observe the outcome through Done/Await; callbacks registered with
// Then run on the owning loop.
type Deferred struct {
	loop *Loop

	mu      sync.Mutex
	settled bool
	value   any
	err     error
	thens   []func(any, error)
	done    chan struct{}
}

// NewDeferred creates a pending handle bound to the loop.
func (l *Loop) NewDeferred() *Deferred {
	return &Deferred{loop: l, done: make(chan struct{})}
}

// Resolve settles the handle with v.
func (d *Deferred) Resolve(v any) error {
	return d.settle(v, nil)
}

// Reject settles the handle with err.
func (d *Deferred) Reject(err error) error {
	if err == nil {
		err = ErrRejected
	}
	return d.settle(nil, err)
}

func (d *Deferred) settle(v any, err error) error {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return ErrAlreadySettled
	}
	d.settled = true
	d.value, d.err = v, err
	thens := d.thens
	d.thens = nil
	close(d.done)
	d.mu.Unlock()

	for _, fn := range thens {
		d.schedule(fn, v, err)
	}
	return nil
}

// Settled reports whether Resolve or Reject has been called.
func (d *Deferred) Settled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

// Done is closed once the handle is settled.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Result returns the settled outcome. It must only be called after Done.
func (d *Deferred) Result() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err
}

// Await blocks until the handle settles or ctx ends. It must not be called
// from a loop callback; use Then there.
func (d *Deferred) Await(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then registers fn to run on the loop once the handle settles.
func (d *Deferred) Then(fn func(v any, err error)) {
	d.mu.Lock()
	if !d.settled {
		d.thens = append(d.thens, fn)
		d.mu.Unlock()
		return
	}
	v, err := d.value, d.err
	d.mu.Unlock()
	d.schedule(fn, v, err)
}

func (d *Deferred) schedule(fn func(any, error), v any, err error) {
	if d.loop == nil {
		fn(v, err)
		return
	}
	if sendErr := d.loop.Send(func(*Context) { fn(v, err) }); sendErr != nil {
		// Loop is gone; run inline so the continuation is not lost.
		fn(v, err)
	}
}
