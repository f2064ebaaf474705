// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/connectbridge/internal/bridge"
	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/host"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/spirc/virtual"
	"github.com/ManuGH/connectbridge/internal/tokenstore"
	"github.com/ManuGH/connectbridge/internal/webapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var quiet = zerolog.New(io.Discard)

func newPlayer(t *testing.T, opts Options) *Player {
	t.Helper()
	loop := host.NewLoop(host.WithLogger(quiet))
	t.Cleanup(loop.Close)

	h, err := bridge.Bootstrap(context.Background(), bridge.Options{
		Engine:      virtual.New(),
		Credentials: spirc.Credentials{Username: "alice"},
		Player:      spirc.DefaultPlayerConfig(),
		Connect:     spirc.DefaultConnectConfig(),
		Loop:        loop,
		Logger:      &quiet,
	})
	require.NoError(t, err)

	opts.Logger = &quiet
	p, err := New(h, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
			t.Error("bridge did not stop")
		}
	})
	return p
}

func TestPlayer_PlayPauseUpdatesState(t *testing.T) {
	p := newPlayer(t, Options{})
	ctx := context.Background()

	require.NoError(t, p.Play(ctx))
	require.Eventually(t, func() bool { return p.State().Playing }, 2*time.Second, 5*time.Millisecond)
	st := p.State()
	assert.NotEmpty(t, st.TrackURI)
	assert.Equal(t, uint64(1), st.PlayRequestID)
	assert.Equal(t, p.DeviceID(), st.DeviceID)

	require.NoError(t, p.Pause(ctx))
	require.Eventually(t, func() bool { return !p.State().Playing }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Seek(ctx, 42000))
	require.Eventually(t, func() bool { return p.Position() == 42000 }, 2*time.Second, 5*time.Millisecond)
}

func TestPlayer_SeekWithoutTrackFails(t *testing.T) {
	p := newPlayer(t, Options{})
	err := p.Seek(context.Background(), 10)
	assert.ErrorIs(t, err, virtual.ErrNoTrack)
}

func TestPlayer_Volume(t *testing.T) {
	p := newPlayer(t, Options{})
	ctx := context.Background()

	require.NoError(t, p.SetVolume(ctx, 50, false))
	raw, err := p.Volume(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, float64(32768), raw)

	pct, err := p.Volume(ctx, false)
	require.NoError(t, err)
	assert.InDelta(t, 50, pct, 0.01)

	require.NoError(t, p.SetVolume(ctx, 1000, true))
	raw, err = p.Volume(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), raw)
	require.Eventually(t, func() bool { return p.State().Volume == 1000 }, 2*time.Second, 5*time.Millisecond)
}

func TestVolumeConversion(t *testing.T) {
	assert.Equal(t, uint16(0), ToRaw(-5, false))
	assert.Equal(t, uint16(65535), ToRaw(250, false))
	assert.Equal(t, uint16(65535), ToRaw(1e9, true))
	assert.Equal(t, uint16(0), ToRaw(-1, true))
	assert.Equal(t, uint16(1234), ToRaw(1234.4, true))
	assert.Equal(t, float64(100), FromRaw(65535, false))
	assert.Equal(t, float64(7), FromRaw(7, true))
	assert.Equal(t, float64(1)/65535*100, FromRaw(1, false))
	assert.Equal(t, float64(32768)/65535*100, FromRaw(32768, false))
}

func TestPlayer_OnFanOutAndUnsubscribe(t *testing.T) {
	p := newPlayer(t, Options{})

	var mu sync.Mutex
	var a, b []string
	unsubA := p.On(func(r event.Record) {
		mu.Lock()
		a = append(a, r.Tag())
		mu.Unlock()
	})
	p.On(func(r event.Record) {
		mu.Lock()
		b = append(b, r.Tag())
		mu.Unlock()
	})
	p.On(func(event.Record) { panic("bad subscriber") })
	assert.Equal(t, 3, p.Subscribers())

	require.NoError(t, p.SetVolume(context.Background(), 10, false))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(a) == 1 && len(b) == 1
	}, 2*time.Second, 5*time.Millisecond)

	unsubA()
	require.NoError(t, p.SetVolume(context.Background(), 20, false))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(b) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{event.TagVolume}, a)
	assert.Equal(t, []string{event.TagVolume, event.TagVolume}, b)
}

func TestPlayer_TokenUsesCache(t *testing.T) {
	store := tokenstore.NewMemory()
	p := newPlayer(t, Options{Tokens: store})
	ctx := context.Background()

	first, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", first.TokenType)
	assert.ElementsMatch(t, DefaultScopes, first.Scopes)

	second, err := p.Token(ctx, "streaming")
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, second.AccessToken)

	cached, ok, err := store.Get(ctx, DefaultScopes)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, cached)
}

func TestPlayer_ConcurrentTokenFetches(t *testing.T) {
	p := newPlayer(t, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := p.Token(context.Background(), "streaming")
			if err == nil && tok.AccessToken == "" {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestPlayer_TokenSurvivesFirstCallerGivingUp(t *testing.T) {
	p := newPlayer(t, Options{})

	// Hold the dispatcher so both callers join the same pending fetch.
	release := make(chan struct{})
	blocker := p.loop.NewDeferred()
	require.NoError(t, p.bridge.Submit(blocker, func(_ context.Context, _ spirc.Remote, _ *host.Loop, d *host.Deferred) {
		<-release
		_ = d.Resolve(nil)
	}))

	impatient, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := p.Token(impatient, "streaming")
		first <- err
	}()

	type result struct {
		tok tokenstore.Token
		err error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := p.Token(context.Background(), "streaming")
		second <- result{tok, err}
	}()

	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("impatient caller did not return")
	}
	close(release)

	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.NotEmpty(t, res.tok.AccessToken)
	case <-time.After(5 * time.Second):
		t.Fatal("patient caller did not return")
	}
}

func TestPlayer_Metadata(t *testing.T) {
	p := newPlayer(t, Options{})
	ctx := context.Background()

	md, ok, err := p.Metadata(ctx, "spotify:track:4GNcXTGWmnZ3ySrqvol3o4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "spotify:track:4GNcXTGWmnZ3ySrqvol3o4", md.TrackURI)
	assert.NotEmpty(t, md.CanvasURL)

	_, ok, err = p.Metadata(ctx, "spotify:playlist:4GNcXTGWmnZ3ySrqvol3o4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = p.Metadata(ctx, "spotify:track:short")
	assert.ErrorIs(t, err, webapi.ErrInvalidURI)

	require.NoError(t, p.Close())
	_, _, err = p.Metadata(ctx, "spotify:track:4GNcXTGWmnZ3ySrqvol3o4")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPlayer_Load(t *testing.T) {
	var gotDevice, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice = r.URL.Query().Get("device_id")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	web := webapi.New(webapi.WithBaseURL(srv.URL), webapi.WithHTTPClient(srv.Client()), webapi.WithRateLimit(rate.Inf, 1))
	p := newPlayer(t, Options{WebAPI: web})

	uri := "spotify:track:4GNcXTGWmnZ3ySrqvol3o4"
	require.NoError(t, p.Load(context.Background(), uri))
	assert.Equal(t, p.DeviceID(), gotDevice)
	assert.Contains(t, gotAuth, "Bearer ")
	assert.Equal(t, map[string]any{"uris": []any{uri}}, gotBody)

	err := p.Load(context.Background(), "spotify:bogus:1")
	assert.ErrorIs(t, err, webapi.ErrInvalidURI)
}

func TestPlayer_Close(t *testing.T) {
	p := newPlayer(t, Options{})
	p.On(func(event.Record) {})

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Close(), ErrClosed)
	assert.Zero(t, p.Subscribers())
	assert.ErrorIs(t, p.Play(context.Background()), ErrClosed)
	assert.ErrorIs(t, p.Load(context.Background(), "spotify:track:4GNcXTGWmnZ3ySrqvol3o4"), ErrClosed)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestPlayer_CommandsAfterBridgeStopped(t *testing.T) {
	p := newPlayer(t, Options{})
	require.NoError(t, p.bridge.Close())
	<-p.Done()
	assert.ErrorIs(t, p.Play(context.Background()), bridge.ErrBridgeClosed)
}
