// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"sync/atomic"

	"github.com/ManuGH/connectbridge/internal/host"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/queue"
	"github.com/rs/zerolog"
)

const (
	statePending int32 = iota
	stateRunning
	stateAbandoned
)

// readiness is the one-shot rendezvous between Bootstrap and the session
// goroutine. Exactly one of claim or abandon succeeds.
type readiness struct{ v atomic.Int32 }

func (r *readiness) claim() bool   { return r.v.CompareAndSwap(statePending, stateRunning) }
func (r *readiness) abandon() bool { return r.v.CompareAndSwap(statePending, stateAbandoned) }

// Handle is the host's view of a running bridge. All methods are safe for
// concurrent use.
type Handle struct {
	commands *queue.Queue[Command]
	loop     *host.Loop
	logger   zerolog.Logger
	state    readiness
	closed   atomic.Bool
	deviceID string
	cancel   context.CancelFunc
	done     chan struct{}
}

// Submit enqueues work. It never blocks; it fails with ErrBridgeClosed once
// the bridge has been closed or torn down.
func (h *Handle) Submit(d *host.Deferred, work Work) error {
	if d == nil || work == nil {
		return ErrInvalidCommand
	}
	if err := h.commands.Push(invokeCommand(d, work)); err != nil {
		metrics.RecordSubmit(false)
		return ErrBridgeClosed
	}
	metrics.RecordSubmit(true)
	metrics.QueueDepth.Set(float64(h.commands.Len()))
	return nil
}

// Call submits work with a fresh deferred and waits for its outcome.
func (h *Handle) Call(ctx context.Context, work Work) (any, error) {
	d := h.loop.NewDeferred()
	if err := h.Submit(d, work); err != nil {
		return nil, err
	}
	return d.Await(ctx)
}

// Close requests shutdown. Commands queued before Close still run. A second
// call, or a call after the bridge tore itself down, returns ErrBridgeClosed
// and has no other effect.
func (h *Handle) Close() error {
	return h.shutdown("closed")
}

func (h *Handle) shutdown(reason string) error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrBridgeClosed
	}
	if err := h.commands.PushAndClose(shutdownCommand(reason)); err != nil {
		return ErrBridgeClosed
	}
	h.logger.Info().
		Str(xglog.FieldEvent, "bridge.shutdown_requested").
		Str("reason", reason).
		Msg("bridge shutdown requested")
	return nil
}

// Closed reports whether shutdown was requested.
func (h *Handle) Closed() bool { return h.closed.Load() }

// Done is closed once the session context, dispatcher and forwarder exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until Done or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeviceID returns the session's device id.
func (h *Handle) DeviceID() string { return h.deviceID }

// Loop returns the host loop the bridge delivers to.
func (h *Handle) Loop() *host.Loop { return h.loop }

// Pending returns the number of queued commands.
func (h *Handle) Pending() int { return h.commands.Len() }
