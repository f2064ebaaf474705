// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player is the host-facing player API. Every control call becomes
// one bridge command; event records from the bridge are folded into a state
// snapshot and fanned out to subscribers.
package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/connectbridge/internal/bridge"
	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/host"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/telemetry"
	"github.com/ManuGH/connectbridge/internal/tokenstore"
	"github.com/ManuGH/connectbridge/internal/webapi"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by calls on a closed player.
var ErrClosed = errors.New("player: closed")

// tokenFetchTimeout bounds a shared token fetch, which outlives the caller
// that started it.
const tokenFetchTimeout = 30 * time.Second

// DefaultScopes are requested when Token is called without scopes.
var DefaultScopes = []string{
	"streaming",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
}

// Handler receives every event record, on the host loop goroutine.
type Handler func(rec event.Record)

// Options configure a Player.
type Options struct {
	// Tokens caches access tokens. Nil disables caching.
	Tokens tokenstore.Store
	// WebAPI is used by Load. Nil uses webapi.New().
	WebAPI *webapi.Client
	// Scopes overrides DefaultScopes.
	Scopes []string
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Player wraps a running bridge.
type Player struct {
	bridge *bridge.Handle
	loop   *host.Loop
	tokens tokenstore.Store
	web    *webapi.Client
	scopes []string
	logger zerolog.Logger
	now    func() time.Time
	tracer trace.Tracer
	state  *tracker
	flight singleflight.Group

	mu     sync.RWMutex
	subs   map[uint64]Handler
	nextID uint64
	closed atomic.Bool
}

// New attaches a player to h and installs it as the loop's listener.
func New(h *bridge.Handle, opts Options) (*Player, error) {
	if h == nil {
		return nil, errors.New("player: nil bridge")
	}
	p := &Player{
		bridge: h,
		loop:   h.Loop(),
		tokens: opts.Tokens,
		web:    opts.WebAPI,
		scopes: opts.Scopes,
		logger: xglog.WithComponent("player"),
		now:    opts.Now,
		tracer: telemetry.Tracer("connectbridge/player"),
		subs:   make(map[uint64]Handler),
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.web == nil {
		p.web = webapi.New()
	}
	if len(p.scopes) == 0 {
		p.scopes = DefaultScopes
	}
	p.state = newTracker(p.now)
	if err := p.loop.RegisterListener(p.dispatch); err != nil {
		return nil, fmt.Errorf("player: register listener: %w", err)
	}
	return p, nil
}

func (p *Player) dispatch(rec event.Record) {
	p.state.apply(rec)

	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.subs))
	for _, h := range p.subs {
		handlers = append(handlers, h)
	}
	p.mu.RUnlock()

	for _, h := range handlers {
		p.deliver(h, rec)
	}
}

func (p *Player) deliver(h Handler, rec event.Record) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HostCallbackPanicsTotal.Inc()
			p.logger.Error().
				Str(xglog.FieldEvent, "player.subscriber_panic").
				Str("tag", rec.Tag()).
				Interface(xglog.FieldPanic, r).
				Msg("event subscriber panicked")
		}
	}()
	h(rec)
}

// On subscribes h to event records. The returned function unsubscribes.
func (p *Player) On(h Handler) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs[id] = h
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Subscribers returns the number of registered handlers.
func (p *Player) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// exec runs fn against the remote as one command and waits for it.
func (p *Player) exec(ctx context.Context, op string, fn func(context.Context, spirc.Remote) (any, error)) (any, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	ctx, span := p.tracer.Start(ctx, "player."+op,
		trace.WithAttributes(telemetry.PlayerAttributes(op, p.bridge.DeviceID())...))
	defer span.End()

	v, err := p.bridge.Call(ctx, func(ctx context.Context, r spirc.Remote, _ *host.Loop, d *host.Deferred) {
		res, err := fn(ctx, r)
		if err != nil {
			_ = d.Reject(err)
			return
		}
		_ = d.Resolve(res)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("player: %s: %w", op, err)
	}
	return v, nil
}

func (p *Player) run(ctx context.Context, op string, fn func(spirc.Remote) error) error {
	_, err := p.exec(ctx, op, func(_ context.Context, r spirc.Remote) (any, error) { return nil, fn(r) })
	return err
}

// Play resumes or starts playback.
func (p *Player) Play(ctx context.Context) error {
	return p.run(ctx, "play", spirc.Remote.Play)
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.run(ctx, "pause", spirc.Remote.Pause)
}

// PlayPause toggles playback.
func (p *Player) PlayPause(ctx context.Context) error {
	return p.run(ctx, "play_pause", spirc.Remote.PlayPause)
}

// Next skips to the next track.
func (p *Player) Next(ctx context.Context) error {
	return p.run(ctx, "next", spirc.Remote.Next)
}

// Prev goes back one track or restarts the current one.
func (p *Player) Prev(ctx context.Context) error {
	return p.run(ctx, "prev", spirc.Remote.Prev)
}

// Seek moves the playhead to positionMS.
func (p *Player) Seek(ctx context.Context, positionMS uint32) error {
	return p.run(ctx, "seek", func(r spirc.Remote) error { return r.Seek(positionMS) })
}

// SetVolume sets the volume. With raw it is taken as 0..65535, otherwise as
// a percentage; both are clamped.
func (p *Player) SetVolume(ctx context.Context, volume float64, raw bool) error {
	v := ToRaw(volume, raw)
	return p.run(ctx, "set_volume", func(r spirc.Remote) error { return r.SetVolume(v) })
}

// Volume returns the volume, as 0..65535 with raw or as a percentage.
func (p *Player) Volume(ctx context.Context, raw bool) (float64, error) {
	v, err := p.exec(ctx, "volume", func(_ context.Context, r spirc.Remote) (any, error) { return r.Volume(), nil })
	if err != nil {
		return 0, err
	}
	return FromRaw(v.(uint16), raw), nil
}

// ToRaw converts a volume to the mixer's 0..65535 range.
func ToRaw(volume float64, raw bool) uint16 {
	if math.IsNaN(volume) {
		return 0
	}
	if raw {
		return uint16(math.Round(math.Max(0, math.Min(volume, math.MaxUint16))))
	}
	pct := math.Max(0, math.Min(volume, 100))
	return uint16(math.Round(pct * math.MaxUint16 / 100))
}

// FromRaw converts a mixer volume to a percentage unless raw.
func FromRaw(v uint16, raw bool) float64 {
	if raw {
		return float64(v)
	}
	return float64(v) / math.MaxUint16 * 100
}

// Position returns the playback position in milliseconds.
func (p *Player) Position() uint32 {
	return p.state.position()
}

// State returns the current snapshot.
func (p *Player) State() State {
	s := p.state.snapshot()
	s.DeviceID = p.bridge.DeviceID()
	return s
}

// DeviceID returns the connect device id.
func (p *Player) DeviceID() string {
	return p.bridge.DeviceID()
}

// Token returns an access token covering scopes (DefaultScopes when empty).
// Cached tokens are reused; concurrent misses share one fetch.
func (p *Player) Token(ctx context.Context, scopes ...string) (tokenstore.Token, error) {
	if len(scopes) == 0 {
		scopes = p.scopes
	}
	if p.tokens != nil {
		tok, ok, err := p.tokens.Get(ctx, scopes)
		switch {
		case err != nil:
			metrics.RecordTokenLookup("store", "error")
			p.logger.Warn().Err(err).Str(xglog.FieldEvent, "player.token_cache_failed").Msg("token cache lookup failed")
		case ok:
			metrics.RecordTokenLookup("store", "hit")
			return tok, nil
		default:
			metrics.RecordTokenLookup("store", "miss")
		}
	}

	ch := p.flight.DoChan(tokenstore.ScopeKey(scopes), func() (any, error) {
		// Other callers may be waiting on this fetch; one caller giving up
		// must not fail them.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()
		res, err := p.exec(ctx, "token", func(ctx context.Context, r spirc.Remote) (any, error) {
			return r.Token(ctx, scopes)
		})
		if err != nil {
			return nil, err
		}
		st := res.(spirc.Token)
		granted := st.Scopes
		if len(granted) == 0 {
			granted = scopes
		}
		tok := tokenstore.NewToken(st.AccessToken, st.TokenType, st.ExpiresIn, granted, p.now())
		if p.tokens != nil {
			if err := p.tokens.Put(ctx, tok); err != nil {
				p.logger.Warn().Err(err).Str(xglog.FieldEvent, "player.token_save_failed").Msg("failed to cache token")
			}
		}
		return tok, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		metrics.RecordTokenLookup("session", "abandoned")
		return tokenstore.Token{}, fmt.Errorf("player: token: %w", ctx.Err())
	}
	if res.Err != nil {
		metrics.RecordTokenLookup("session", "error")
		return tokenstore.Token{}, res.Err
	}
	result := "fetched"
	if res.Shared {
		result = "shared"
	}
	metrics.RecordTokenLookup("session", result)
	return res.Val.(tokenstore.Token), nil
}

// Metadata returns the canvas metadata of a track URI. Malformed URIs fail
// with webapi.ErrInvalidURI; valid URIs that are not tracks report ok=false.
func (p *Player) Metadata(ctx context.Context, uri string) (md spirc.Metadata, ok bool, err error) {
	id, err := event.ParseURI(uri)
	if err != nil {
		return spirc.Metadata{}, false, fmt.Errorf("player: metadata: %w: %w", webapi.ErrInvalidURI, err)
	}
	if id.Type != event.ItemTypeTrack {
		return spirc.Metadata{}, false, nil
	}
	v, err := p.exec(ctx, "metadata", func(ctx context.Context, r spirc.Remote) (any, error) {
		return r.Metadata(ctx, id)
	})
	if err != nil {
		return spirc.Metadata{}, false, err
	}
	return v.(spirc.Metadata), true, nil
}

// Load starts playback of uris through the Web API on this device. Track
// and episode URIs are queued as a list; any other URI is played as a
// context and must be the only one.
func (p *Player) Load(ctx context.Context, uris ...string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if _, err := webapi.PlayBody(uris); err != nil {
		return fmt.Errorf("player: load: %w", err)
	}
	ctx, span := p.tracer.Start(ctx, "player.load",
		trace.WithAttributes(telemetry.PlayerAttributes("load", p.bridge.DeviceID(), uris...)...))
	defer span.End()

	tok, err := p.Token(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("player: load: token: %w", err)
	}
	if err := p.web.Play(ctx, tok.AccessToken, p.bridge.DeviceID(), uris); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("player: load: %w", err)
	}
	return nil
}

// Close drops all subscribers, releases the listener slot and shuts the
// bridge down. A second call returns ErrClosed.
func (p *Player) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	p.mu.Lock()
	clear(p.subs)
	p.mu.Unlock()
	// The loop may already be closed by its owner.
	_ = p.loop.UnregisterListener()

	if err := p.bridge.Close(); err != nil && !errors.Is(err, bridge.ErrBridgeClosed) {
		return err
	}
	return nil
}

// Done is closed once the underlying bridge has fully stopped.
func (p *Player) Done() <-chan struct{} {
	return p.bridge.Done()
}
