// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package host models the host's execution context: a single goroutine that
// runs scheduled callbacks one at a time, the promise-like [Deferred] handles
// it observes, and the single listener slot that receives event records.
package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/connectbridge/internal/event"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/queue"
	"github.com/rs/zerolog"
)

// ErrLoopClosed is returned when scheduling onto a closed loop.
var ErrLoopClosed = errors.New("host: loop closed")

// DefaultListenerBuffer is the number of records kept while no listener is registered.
const DefaultListenerBuffer = 256

// Callback runs on the loop goroutine.
type Callback func(c *Context)

// Context is handed to callbacks running on the loop. It is only valid for
// the duration of the callback.
type Context struct {
	loop *Loop
}

// Emit delivers rec to the registered listener, or buffers it.
func (c *Context) Emit(rec event.Record) {
	c.loop.slot.deliver(rec)
}

// Loop is a serial executor standing in for the host's event loop.
type Loop struct {
	q      *queue.Queue[Callback]
	slot   *ListenerSlot
	logger zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithListenerBuffer sets how many records are retained while no listener is
// registered. Zero drops them.
func WithListenerBuffer(n int) Option {
	return func(l *Loop) {
		if n < 0 {
			n = 0
		}
		l.slot.capacity = n
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop starts a loop goroutine.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		q:      queue.New[Callback](),
		slot:   &ListenerSlot{capacity: DefaultListenerBuffer},
		logger: xglog.WithComponent("host"),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l
}

// Send schedules cb. Callbacks run in the order they were sent.
func (l *Loop) Send(cb Callback) error {
	if cb == nil {
		return fmt.Errorf("host: nil callback")
	}
	if err := l.q.Push(cb); err != nil {
		return ErrLoopClosed
	}
	return nil
}

// Emit schedules delivery of rec to the listener.
func (l *Loop) Emit(rec event.Record) error {
	err := l.Send(func(c *Context) { c.Emit(rec) })
	if err != nil {
		metrics.IncListenerDrop("loop_closed")
	}
	return err
}

// RegisterListener replaces the listener. Buffered records are flushed to fn
// in order, on the loop, before any later record.
func (l *Loop) RegisterListener(fn Listener) error {
	return l.Send(func(*Context) { l.slot.set(fn) })
}

// UnregisterListener clears the listener slot.
func (l *Loop) UnregisterListener() error {
	return l.Send(func(*Context) { l.slot.set(nil) })
}

// Listeners exposes the slot for inspection.
func (l *Loop) Listeners() *ListenerSlot {
	return l.slot
}

// Close stops accepting callbacks and waits until the ones already queued ran.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.q.Close()
	})
	<-l.done
}

// Done is closed once the loop goroutine exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	c := &Context{loop: l}
	for {
		cb, ok := l.q.Pop()
		if !ok {
			return
		}
		l.invoke(c, cb)
	}
}

func (l *Loop) invoke(c *Context, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HostCallbackPanicsTotal.Inc()
			l.logger.Error().
				Str(xglog.FieldEvent, "host.callback_panic").
				Interface(xglog.FieldPanic, r).
				Msg("host callback panicked")
		}
	}()
	cb(c)
}
