// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ManuGH/connectbridge/internal/host"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/queue"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Command outcomes recorded in metrics.
const (
	outcomeResolved = "resolved"
	outcomeRejected = "rejected"
	outcomePanic    = "panic"
	outcomeTimeout  = "timeout"
	outcomeDropped  = "dropped"
)

// dispatcher is the sole owner of the remote. It runs commands strictly one
// after another on a goroutine locked to its OS thread.
type dispatcher struct {
	commands *queue.Queue[Command]
	remote   spirc.Remote
	loop     *host.Loop
	timeout  time.Duration
	tracer   trace.Tracer
	logger   zerolog.Logger
}

func (d *dispatcher) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	reason := "channel_closed"
	for {
		cmd, ok := d.commands.Pop()
		metrics.QueueDepth.Set(float64(d.commands.Len()))
		if !ok {
			break
		}
		if cmd.Kind == KindShutdown {
			reason = cmd.Reason
			break
		}
		d.execute(ctx, cmd)
	}

	// Nothing can follow a shutdown marker, but a bare Close leaves the
	// queue drained; reject anything left so no caller waits forever.
	d.commands.Close()
	for _, cmd := range d.commands.Drain() {
		if cmd.Deferred != nil {
			_ = cmd.Deferred.Reject(&CommandError{CommandID: cmd.ID, Err: ErrBridgeClosed})
		}
	}
	metrics.QueueDepth.Set(0)

	d.logger.Info().
		Str(xglog.FieldEvent, "bridge.dispatcher_stopped").
		Str("reason", reason).
		Msg("dispatcher stopped")
	if err := d.shutdownRemote(); err != nil {
		d.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "bridge.remote_shutdown_failed").
			Msg("remote shutdown failed")
	}
}

func (d *dispatcher) shutdownRemote() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote shutdown panicked: %v", r)
		}
	}()
	return d.remote.Shutdown()
}

func (d *dispatcher) execute(parent context.Context, cmd Command) {
	ctx, span := d.tracer.Start(parent, "bridge.command",
		trace.WithAttributes(telemetry.CommandAttributes(cmd.ID, cmd.Kind.String(), d.commands.Len())...))
	defer span.End()
	ctx = xglog.ContextWithCommandID(ctx, cmd.ID)

	d.observe(cmd)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		timer := time.AfterFunc(d.timeout, func() {
			_ = cmd.Deferred.Reject(&CommandError{CommandID: cmd.ID, Err: ErrCommandTimeout})
		})
		cmd.Deferred.Then(func(any, error) {
			timer.Stop()
			cancel()
		})
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		span.SetStatus(codes.Error, "panic")
		span.SetAttributes(telemetry.ErrorAttributes(outcomePanic)...)
		logger := xglog.WithContext(ctx, d.logger)
		logger.Error().
			Str(xglog.FieldEvent, "bridge.command_panic").
			Interface(xglog.FieldPanic, r).
			Msg("command panicked; rejecting it and continuing")
		if err := cmd.Deferred.Reject(&CommandError{CommandID: cmd.ID, Panic: r}); err != nil {
			logger.Warn().
				Str(xglog.FieldEvent, "bridge.command_panic_after_settle").
				Msg("command panicked after settling its deferred")
		}
	}()

	cmd.Work(ctx, d.remote, d.loop, cmd.Deferred)
}

// observe records the command's outcome once its deferred settles.
func (d *dispatcher) observe(cmd Command) {
	cmd.Deferred.Then(func(_ any, err error) {
		metrics.RecordCommand(outcomeOf(err), time.Since(cmd.enqueued))
	})
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeResolved
	case errors.Is(err, ErrCommandTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrBridgeClosed):
		return outcomeDropped
	case IsPanic(err):
		return outcomePanic
	default:
		return outcomeRejected
	}
}
