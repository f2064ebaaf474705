// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/host"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/spirc/virtual"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = zerolog.New(io.Discard)

// capturingEngine exposes the virtual player so tests can inject events.
type capturingEngine struct {
	*virtual.Engine
	player *virtual.Player
}

func (c *capturingEngine) NewPlayer(ctx context.Context, sess spirc.Session, cfg spirc.PlayerConfig) (spirc.Player, spirc.Mixer, error) {
	p, m, err := c.Engine.NewPlayer(ctx, sess, cfg)
	if err == nil {
		c.player = p.(*virtual.Player)
	}
	return p, m, err
}

type fixture struct {
	engine *capturingEngine
	loop   *host.Loop
	handle *Handle
}

func baseOptions(engine spirc.Engine, loop *host.Loop) Options {
	return Options{
		Engine:       engine,
		Credentials:  spirc.Credentials{Username: "alice", Password: "secret"},
		Player:       spirc.DefaultPlayerConfig(),
		Connect:      spirc.DefaultConnectConfig(),
		Loop:         loop,
		ReadyTimeout: 2 * time.Second,
		Logger:       &quiet,
	}
}

func newFixture(t *testing.T, tweak func(*Options), engineOpts ...virtual.Option) *fixture {
	t.Helper()
	loop := host.NewLoop(host.WithLogger(quiet))
	t.Cleanup(loop.Close)

	engine := &capturingEngine{Engine: virtual.New(engineOpts...)}
	opts := baseOptions(engine, loop)
	if tweak != nil {
		tweak(&opts)
	}
	h, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.Wait(ctx))
	})
	return &fixture{engine: engine, loop: loop, handle: h}
}

func await(t *testing.T, d *host.Deferred) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := d.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return v, err
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestDispatcher_RunsCommandsInSubmissionOrder(t *testing.T) {
	f := newFixture(t, nil)

	const n = 200
	var order []int
	deferreds := make([]*host.Deferred, n)
	for i := 0; i < n; i++ {
		i := i
		deferreds[i] = f.loop.NewDeferred()
		require.NoError(t, f.handle.Submit(deferreds[i], func(_ context.Context, _ spirc.Remote, _ *host.Loop, d *host.Deferred) {
			order = append(order, i)
			_ = d.Resolve(i)
		}))
	}
	for i, d := range deferreds {
		v, err := await(t, d)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}

	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestDispatcher_CommandsNeverOverlap(t *testing.T) {
	f := newFixture(t, nil)

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	deferreds := make(chan *host.Deferred, 40)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				d := f.loop.NewDeferred()
				err := f.handle.Submit(d, func(_ context.Context, _ spirc.Remote, _ *host.Loop, d *host.Deferred) {
					cur := active.Add(1)
					for {
						prev := maxActive.Load()
						if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					active.Add(-1)
					_ = d.Resolve(nil)
				})
				if err == nil {
					deferreds <- d
				}
			}
		}()
	}
	wg.Wait()
	close(deferreds)

	count := 0
	for d := range deferreds {
		_, err := await(t, d)
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 40, count)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestDispatcher_EveryDeferredSettlesExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)

	var resolved, duplicates atomic.Int32
	deferreds := make([]*host.Deferred, 100)
	for i := range deferreds {
		d := f.loop.NewDeferred()
		d.Then(func(any, error) { resolved.Add(1) })
		deferreds[i] = d
		require.NoError(t, f.handle.Submit(d, func(_ context.Context, _ spirc.Remote, _ *host.Loop, d *host.Deferred) {
			_ = d.Resolve("ok")
			if errors.Is(d.Resolve("again"), host.ErrAlreadySettled) {
				duplicates.Add(1)
			}
		}))
	}
	for _, d := range deferreds {
		_, err := await(t, d)
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool { return resolved.Load() == 100 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(100), duplicates.Load())
}

func TestDispatcher_PanicRejectsOnlyThatCommand(t *testing.T) {
	f := newFixture(t, nil)
	panics := metrics.CommandsCompletedTotal.WithLabelValues("panic")
	before := counterValue(t, panics)

	bad := f.loop.NewDeferred()
	require.NoError(t, f.handle.Submit(bad, func(context.Context, spirc.Remote, *host.Loop, *host.Deferred) {
		panic("bad command")
	}))
	good := f.loop.NewDeferred()
	require.NoError(t, f.handle.Submit(good, func(_ context.Context, r spirc.Remote, _ *host.Loop, d *host.Deferred) {
		_ = d.Resolve(r.DeviceID())
	}))

	_, err := await(t, bad)
	require.Error(t, err)
	assert.True(t, IsPanic(err))
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "bad command", ce.Panic)
	assert.NotEmpty(t, ce.CommandID)

	v, err := await(t, good)
	require.NoError(t, err)
	assert.Equal(t, f.handle.DeviceID(), v)
	assert.Eventually(t, func() bool { return counterValue(t, panics) == before+1 }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_CommandTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CommandTimeout = 20 * time.Millisecond })

	d := f.loop.NewDeferred()
	var sawDeadline atomic.Bool
	require.NoError(t, f.handle.Submit(d, func(ctx context.Context, _ spirc.Remote, _ *host.Loop, _ *host.Deferred) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
	}))
	_, err := await(t, d)
	assert.ErrorIs(t, err, ErrCommandTimeout)
	assert.True(t, sawDeadline.Load())

	quick, err := f.handle.Call(context.Background(), func(_ context.Context, _ spirc.Remote, _ *host.Loop, d *host.Deferred) {
		_ = d.Resolve("fast")
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", quick)
}

func TestHandle_CloseSemantics(t *testing.T) {
	loop := host.NewLoop(host.WithLogger(quiet))
	t.Cleanup(loop.Close)
	h, err := Bootstrap(context.Background(), baseOptions(virtual.New(), loop))
	require.NoError(t, err)

	queued := make([]*host.Deferred, 10)
	for i := range queued {
		queued[i] = loop.NewDeferred()
		require.NoError(t, h.Submit(queued[i], func(_ context.Context, _ spirc.Remote, _ *host.Loop, d *host.Deferred) {
			time.Sleep(2 * time.Millisecond)
			_ = d.Resolve(nil)
		}))
	}

	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
	assert.ErrorIs(t, h.Close(), ErrBridgeClosed)

	late := loop.NewDeferred()
	assert.ErrorIs(t, h.Submit(late, func(context.Context, spirc.Remote, *host.Loop, *host.Deferred) {}), ErrBridgeClosed)
	assert.False(t, late.Settled())

	for _, d := range queued {
		_, err := await(t, d)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	assert.ErrorIs(t, h.Close(), ErrBridgeClosed)

	_, err = h.Call(context.Background(), func(context.Context, spirc.Remote, *host.Loop, *host.Deferred) {})
	assert.ErrorIs(t, err, ErrBridgeClosed)
}

func TestHandle_SubmitRejectsInvalidCommand(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.handle.Submit(nil, func(context.Context, spirc.Remote, *host.Loop, *host.Deferred) {}), ErrInvalidCommand)
	assert.ErrorIs(t, f.handle.Submit(f.loop.NewDeferred(), nil), ErrInvalidCommand)
}

func TestForwarder_PreservesEmissionOrder(t *testing.T) {
	f := newFixture(t, nil)

	records := make(chan event.Record, 16)
	require.NoError(t, f.loop.RegisterListener(func(r event.Record) { records <- r }))

	track := event.TrackID{Type: event.ItemTypeTrack, ID: [16]byte{7}}
	for _, ev := range []event.PlayerEvent{
		event.Started{PlayRequestID: 1, TrackID: track},
		event.Playing{PlayRequestID: 1, TrackID: track, DurationMS: 1000},
		event.Paused{PlayRequestID: 1, TrackID: track, PositionMS: 10, DurationMS: 1000},
		event.EndOfTrack{PlayRequestID: 1, TrackID: track},
	} {
		require.NoError(t, f.engine.player.Inject(ev))
	}

	var got []string
	for len(got) < 4 {
		select {
		case r := <-records:
			got = append(got, r.Tag())
			id, ok := r.Uint(event.KeyPlayRequestID)
			assert.True(t, ok)
			assert.Equal(t, uint64(1), id)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %v", got)
		}
	}
	assert.Equal(t, []string{event.TagStarted, event.TagPlaying, event.TagPaused, event.TagEnded}, got)
}

func TestForwarder_DeliversRemoteEventsToLateListener(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.handle.Call(context.Background(), func(_ context.Context, r spirc.Remote, _ *host.Loop, d *host.Deferred) {
		if err := r.Play(); err != nil {
			_ = d.Reject(err)
			return
		}
		_ = d.Resolve(nil)
	})
	require.NoError(t, err)

	records := make(chan string, 16)
	require.NoError(t, f.loop.RegisterListener(func(r event.Record) { records <- r.Tag() }))

	var got []string
	for len(got) < 3 {
		select {
		case tag := <-records:
			got = append(got, tag)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %v", got)
		}
	}
	assert.Equal(t, []string{event.TagLoading, event.TagStarted, event.TagPlaying}, got)
}

func TestBridge_ShutsDownWhenTaskEnds(t *testing.T) {
	loop := host.NewLoop(host.WithLogger(quiet))
	t.Cleanup(loop.Close)
	engine := virtual.New()
	h, err := Bootstrap(context.Background(), baseOptions(engine, loop))
	require.NoError(t, err)

	engine.Revoke()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not shut down after task ended")
	}
	assert.True(t, h.Closed())
	assert.ErrorIs(t, h.Submit(loop.NewDeferred(), func(context.Context, spirc.Remote, *host.Loop, *host.Deferred) {}), ErrBridgeClosed)
	assert.ErrorIs(t, h.Close(), ErrBridgeClosed)
}
