// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/connectbridge/internal/host"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/spirc/virtual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type panickingEngine struct{ *virtual.Engine }

func (panickingEngine) Authenticate(context.Context, spirc.Credentials) (spirc.Session, error) {
	panic("engine exploded")
}

type blockingEngine struct{ *virtual.Engine }

func (blockingEngine) Authenticate(ctx context.Context, _ spirc.Credentials) (spirc.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// lateEngine finishes building the remote only after the ready timeout and
// without watching ctx.
type lateEngine struct {
	*virtual.Engine
	delay   time.Duration
	built   chan spirc.Task
	remotes chan *virtual.Remote
}

func (e *lateEngine) NewRemote(ctx context.Context, cfg spirc.ConnectConfig, sess spirc.Session, creds spirc.Credentials, p spirc.Player, m spirc.Mixer) (spirc.Remote, spirc.Task, error) {
	time.Sleep(e.delay)
	r, task, err := e.Engine.NewRemote(context.WithoutCancel(ctx), cfg, sess, creds, p, m)
	if err == nil {
		e.remotes <- r.(*virtual.Remote)
		e.built <- task
	}
	return r, task, err
}

// ctxEngine records the ctx handed to Authenticate.
type ctxEngine struct {
	*virtual.Engine
	ctx context.Context
}

func (e *ctxEngine) Authenticate(ctx context.Context, creds spirc.Credentials) (spirc.Session, error) {
	e.ctx = ctx
	return e.Engine.Authenticate(ctx, creds)
}

func bootstrapFailure(t *testing.T, engine spirc.Engine, tweak func(*Options)) *BootstrapError {
	t.Helper()
	loop := host.NewLoop(host.WithLogger(quiet))
	defer loop.Close()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	opts := baseOptions(engine, loop)
	if tweak != nil {
		tweak(&opts)
	}
	h, err := Bootstrap(context.Background(), opts)
	require.Error(t, err)
	assert.Nil(t, h)

	var be *BootstrapError
	require.ErrorAs(t, err, &be)
	return be
}

func TestBootstrap_AuthenticationFailure(t *testing.T) {
	cause := errors.New("invalid credentials")
	be := bootstrapFailure(t, virtual.New(virtual.WithAuthError(cause)), nil)
	assert.Equal(t, StageAuthenticate, be.Stage)
	assert.ErrorIs(t, be, cause)
	assert.ErrorIs(t, be, virtual.ErrAuthFailed)
}

func TestBootstrap_StageFailures(t *testing.T) {
	tests := []struct {
		name  string
		opt   virtual.Option
		stage string
	}{
		{name: "player", opt: virtual.WithPlayerError(errors.New("no audio backend")), stage: StagePlayer},
		{name: "remote", opt: virtual.WithRemoteError(errors.New("discovery failed")), stage: StageRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := bootstrapFailure(t, virtual.New(tt.opt), nil)
			assert.Equal(t, tt.stage, be.Stage)
		})
	}
}

func TestBootstrap_PanicBeforeReadyIsFailure(t *testing.T) {
	be := bootstrapFailure(t, panickingEngine{virtual.New()}, nil)
	assert.Equal(t, StageAuthenticate, be.Stage)
	assert.Equal(t, "engine exploded", be.Panic)
	assert.Contains(t, be.Error(), "panic")
}

func TestBootstrap_ReadyTimeout(t *testing.T) {
	be := bootstrapFailure(t, blockingEngine{virtual.New()}, func(o *Options) {
		o.ReadyTimeout = 20 * time.Millisecond
	})
	assert.Equal(t, StageReady, be.Stage)
	assert.ErrorIs(t, be, ErrReadyTimeout)
}

func TestBootstrap_InvalidOptions(t *testing.T) {
	h, err := Bootstrap(context.Background(), Options{ReadyTimeout: -time.Second})
	assert.Nil(t, h)
	var be *BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, StageConfig, be.Stage)
	assert.ErrorContains(t, err, "engine is required")
	assert.ErrorContains(t, err, "host loop is required")
}

func TestBootstrap_ReportsDeviceID(t *testing.T) {
	f := newFixture(t, nil)
	assert.Len(t, f.handle.DeviceID(), 32)
	assert.Same(t, f.loop, f.handle.Loop())
}

func TestBootstrap_LateSetupIsTornDown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	loop := host.NewLoop(host.WithLogger(quiet))
	defer loop.Close()

	engine := &lateEngine{
		Engine:  virtual.New(),
		delay:   100 * time.Millisecond,
		built:   make(chan spirc.Task, 1),
		remotes: make(chan *virtual.Remote, 1),
	}
	opts := baseOptions(engine, loop)
	opts.ReadyTimeout = 20 * time.Millisecond

	h, err := Bootstrap(context.Background(), opts)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrReadyTimeout)

	var remote *virtual.Remote
	var task spirc.Task
	select {
	case remote = <-engine.remotes:
		task = <-engine.built
	case <-time.After(5 * time.Second):
		t.Fatal("remote was never built")
	}

	// The task only returns without ctx expiring once the remote shut down.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, task.Run(ctx))
	require.NoError(t, ctx.Err(), "remote was not shut down")
	assert.ErrorIs(t, remote.Play(), virtual.ErrShutdown)
}

func TestBootstrap_SetupContextOnlyBoundsConstruction(t *testing.T) {
	loop := host.NewLoop(host.WithLogger(quiet))
	defer loop.Close()
	engine := &ctxEngine{Engine: virtual.New()}

	h, err := Bootstrap(context.Background(), baseOptions(engine, loop))
	require.NoError(t, err)
	defer func() {
		_ = h.Close()
		<-h.Done()
	}()

	require.NotNil(t, engine.ctx)
	assert.Error(t, engine.ctx.Err())

	v, err := h.Call(context.Background(), func(_ context.Context, r spirc.Remote, _ *host.Loop, d *host.Deferred) {
		_ = d.Resolve(r.DeviceID())
	})
	require.NoError(t, err)
	assert.Equal(t, h.DeviceID(), v)
}
