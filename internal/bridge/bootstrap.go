// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/connectbridge/internal/host"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/queue"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultReadyTimeout bounds how long Bootstrap waits for the session.
const DefaultReadyTimeout = 30 * time.Second

// Options configure Bootstrap.
type Options struct {
	Engine      spirc.Engine
	Credentials spirc.Credentials
	Player      spirc.PlayerConfig
	Connect     spirc.ConnectConfig

	// Loop receives forwarded events and runs deferred continuations.
	Loop *host.Loop

	// ReadyTimeout bounds session setup. Zero means DefaultReadyTimeout.
	ReadyTimeout time.Duration

	// CommandTimeout rejects commands that have not settled in time with
	// ErrCommandTimeout. Zero disables it.
	CommandTimeout time.Duration

	Logger *zerolog.Logger
}

// Validate checks for missing dependencies.
func (o Options) Validate() error {
	var errs []error
	if o.Engine == nil {
		errs = append(errs, errors.New("engine is required"))
	}
	if o.Loop == nil {
		errs = append(errs, errors.New("host loop is required"))
	}
	if o.ReadyTimeout < 0 {
		errs = append(errs, fmt.Errorf("ready timeout must not be negative, got %s", o.ReadyTimeout))
	}
	if o.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("command timeout must not be negative, got %s", o.CommandTimeout))
	}
	return errors.Join(errs...)
}

// session is everything built during setup.
type session struct {
	deviceID string
	remote   spirc.Remote
	task     spirc.Task
	stream   spirc.EventStream
}

// Bootstrap builds the session on a dedicated goroutine and returns a Handle
// once that goroutine signals readiness. On any failure it returns a
// *BootstrapError and no Handle; the dispatcher and forwarder are only
// started after every setup step succeeded.
func Bootstrap(ctx context.Context, opts Options) (*Handle, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		metrics.RecordBootstrap("invalid", time.Since(start))
		return nil, &BootstrapError{Stage: StageConfig, Err: err}
	}
	if opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	logger := xglog.WithComponent("bridge")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ctx, span := telemetry.Tracer("connectbridge/bridge").Start(ctx, "bridge.bootstrap")
	defer span.End()

	// setupCtx bounds construction only; the session runs under runCtx.
	setupCtx, setupCancel := context.WithTimeout(ctx, opts.ReadyTimeout)
	defer setupCancel()
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))

	h := &Handle{
		commands: queue.New[Command](),
		loop:     opts.Loop,
		logger:   logger,
		cancel:   runCancel,
		done:     make(chan struct{}),
	}
	ready := make(chan error, 1)
	go h.run(setupCtx, runCtx, opts, ready)

	fail := func(err error) (*Handle, error) {
		if setupCtx.Err() != nil && ctx.Err() == nil && !errors.Is(err, ErrReadyTimeout) {
			err = &BootstrapError{Stage: StageReady, Err: fmt.Errorf("%w: %w", ErrReadyTimeout, err)}
		}
		var be *BootstrapError
		if !errors.As(err, &be) {
			be = &BootstrapError{Stage: StageReady, Err: err}
		}
		span.SetStatus(codes.Error, be.Error())
		span.SetAttributes(attribute.String(telemetry.BootstrapStageKey, be.Stage))
		metrics.RecordBootstrap("failed", time.Since(start))
		logger.Error().Err(be).
			Str(xglog.FieldEvent, "bridge.bootstrap_failed").
			Str("stage", be.Stage).
			Msg("bridge bootstrap failed")
		return nil, be
	}

	select {
	case err := <-ready:
		if err != nil {
			<-h.done
			return fail(err)
		}
	case <-setupCtx.Done():
		if h.state.abandon() {
			cause := ErrReadyTimeout
			if ctx.Err() != nil {
				cause = ctx.Err()
			}
			// The session goroutine sees the cancelled setup context and
			// tears down whatever it built.
			return fail(&BootstrapError{Stage: StageReady, Err: cause})
		}
		// Readiness won the race.
		if err := <-ready; err != nil {
			<-h.done
			return fail(err)
		}
	}

	metrics.RecordBootstrap("ready", time.Since(start))
	span.SetAttributes(attribute.String(telemetry.DeviceIDKey, h.deviceID))
	logger.Info().
		Str(xglog.FieldEvent, "bridge.ready").
		Str(xglog.FieldDeviceID, h.deviceID).
		Dur("elapsed", time.Since(start)).
		Msg("bridge ready")
	return h, nil
}

// run is the dedicated session context. It owns setup, then drives the
// remote's background task until shutdown or until the task ends on its own.
func (h *Handle) run(setupCtx, runCtx context.Context, opts Options, ready chan<- error) {
	defer close(h.done)
	defer h.cancel()

	s, err := setup(setupCtx, opts)
	if err != nil {
		ready <- err
		return
	}
	if !h.state.claim() {
		shutdownQuietly(s.remote)
		return
	}
	h.deviceID = s.deviceID

	d := &dispatcher{
		commands: h.commands,
		remote:   s.remote,
		loop:     opts.Loop,
		timeout:  opts.CommandTimeout,
		tracer:   telemetry.Tracer("connectbridge/bridge"),
		logger:   h.logger,
	}
	f := &forwarder{stream: s.stream, loop: opts.Loop, logger: h.logger}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// Dispatcher exit ends the task.
		defer h.cancel()
		d.run(runCtx)
	}()
	go func() {
		defer wg.Done()
		f.run()
	}()
	metrics.ActiveBridges.Inc()
	defer metrics.ActiveBridges.Dec()
	ready <- nil

	taskErr := runTask(runCtx, s.task)
	if runCtx.Err() == nil {
		h.logger.Warn().Err(taskErr).
			Str(xglog.FieldEvent, "bridge.task_ended").
			Msg("remote task ended on its own; shutting bridge down")
		_ = h.shutdown("task_ended")
	}
	wg.Wait()
}

func setup(ctx context.Context, opts Options) (s *session, err error) {
	stage := StageAuthenticate
	var remote spirc.Remote
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, &BootstrapError{Stage: stage, Panic: r}
		}
		if err != nil && remote != nil {
			shutdownQuietly(remote)
		}
	}()

	sess, err := opts.Engine.Authenticate(ctx, opts.Credentials)
	if err != nil {
		return nil, &BootstrapError{Stage: stage, Err: err}
	}

	stage = StagePlayer
	player, mixer, err := opts.Engine.NewPlayer(ctx, sess, opts.Player)
	if err != nil {
		return nil, &BootstrapError{Stage: stage, Err: err}
	}

	stage = StageRemote
	remote, task, err := opts.Engine.NewRemote(ctx, opts.Connect, sess, opts.Credentials, player, mixer)
	if err != nil {
		return nil, &BootstrapError{Stage: stage, Err: err}
	}

	stage = StageEvents
	stream := player.Events()
	if stream == nil {
		return nil, &BootstrapError{Stage: stage, Err: errors.New("player returned no event stream")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &BootstrapError{Stage: StageReady, Err: err}
	}
	return &session{deviceID: sess.DeviceID(), remote: remote, task: task, stream: stream}, nil
}

func runTask(ctx context.Context, task spirc.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote task panicked: %v", r)
		}
	}()
	return task.Run(ctx)
}

func shutdownQuietly(remote spirc.Remote) {
	defer func() { _ = recover() }()
	_ = remote.Shutdown()
}
