// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience guards calls to flaky upstreams.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/connectbridge/internal/metrics"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned without calling the guarded function.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker opens after threshold consecutive counted failures and lets a
// single probe through once resetTimeout has passed.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
	counts       func(error) bool

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithFailureFilter decides which errors count towards opening. By default
// every error except context cancellation counts.
func WithFailureFilter(counts func(error) bool) Option {
	return func(b *Breaker) { b.counts = counts }
}

// New returns a closed breaker.
func New(name string, threshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	b := &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
		counts:       defaultCounts,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.SetCircuitBreakerState(b.name, string(b.state))
	return b
}

func defaultCounts(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	probe, ok := b.allow()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(probe, err)
	return err
}

func (b *Breaker) allow() (probe bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, false
		}
		b.transition(StateHalfOpen)
	}
	// Half-open admits one probe at a time.
	if b.probing {
		return false, false
	}
	b.probing = true
	return true, true
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	if err == nil {
		b.failures = 0
		b.transition(StateClosed)
		return
	}
	if !b.counts(err) {
		return
	}

	b.failures++
	switch {
	case probe:
		metrics.RecordCircuitBreakerTrip(b.name, "probe_failed")
		b.transition(StateOpen)
	case b.state == StateClosed && b.failures >= b.threshold:
		metrics.RecordCircuitBreakerTrip(b.name, "threshold_exceeded")
		b.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if s == StateOpen {
		b.openedAt = b.now()
	}
	metrics.SetCircuitBreakerState(b.name, string(s))
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
