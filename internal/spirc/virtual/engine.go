// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package virtual is an in-process connect engine. Remote commands mutate a
// simulated player and emit the matching player events; no audio or network
// is involved. It backs the daemon's virtual mode and the bridge tests.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/queue"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/google/uuid"
)

var (
	// ErrAuthFailed is returned for rejected credentials.
	ErrAuthFailed = errors.New("virtual: authentication failed")

	// ErrShutdown is returned by remote commands after Shutdown.
	ErrShutdown = errors.New("virtual: remote shut down")

	// ErrRevoked is returned by Task.Run when the session was revoked.
	ErrRevoked = errors.New("virtual: session revoked")

	// ErrNoTrack is returned by commands that need a loaded track.
	ErrNoTrack = errors.New("virtual: no track loaded")

	// ErrNotATrack is returned by Metadata for episodes and other items.
	ErrNotATrack = errors.New("virtual: not a track")
)

const defaultTrackDuration = 3 * time.Minute

var defaultTracks = []string{
	"4GNcXTGWmnZ3ySrqvol3o4",
	"6rqhFgbbKwnb9MLmUQDhG6",
	"0VjIjW4GlUZAMYd2vXMi3b",
}

// Engine implements spirc.Engine.
type Engine struct {
	authErr       error
	playerErr     error
	remoteErr     error
	tracks        []event.TrackID
	trackDuration time.Duration
	now           func() time.Time

	mu    sync.Mutex
	tasks []*Task
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuthError makes Authenticate fail with err.
func WithAuthError(err error) Option {
	return func(e *Engine) { e.authErr = err }
}

// WithPlayerError makes NewPlayer fail with err.
func WithPlayerError(err error) Option {
	return func(e *Engine) { e.playerErr = err }
}

// WithRemoteError makes NewRemote fail with err.
func WithRemoteError(err error) Option {
	return func(e *Engine) { e.remoteErr = err }
}

// WithTracks replaces the simulated play queue.
func WithTracks(ids ...event.TrackID) Option {
	return func(e *Engine) { e.tracks = append([]event.TrackID(nil), ids...) }
}

// WithTrackDuration sets the duration reported for every track.
func WithTrackDuration(d time.Duration) Option {
	return func(e *Engine) { e.trackDuration = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns a virtual engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		trackDuration: defaultTrackDuration,
		now:           time.Now,
	}
	for _, b62 := range defaultTracks {
		id, err := event.ParseBase62(event.ItemTypeTrack, b62)
		if err != nil {
			panic(fmt.Sprintf("virtual: bad default track %q: %v", b62, err))
		}
		e.tracks = append(e.tracks, id)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authenticate accepts any non-empty username unless configured to fail.
func (e *Engine) Authenticate(ctx context.Context, creds spirc.Credentials) (spirc.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.authErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, e.authErr)
	}
	if strings.TrimSpace(creds.Username) == "" {
		return nil, fmt.Errorf("%w: missing username", ErrAuthFailed)
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(creds.Username))
	return &Session{
		deviceID: strings.ReplaceAll(id.String(), "-", ""),
		username: creds.Username,
	}, nil
}

// NewPlayer builds a simulated player and mixer.
func (e *Engine) NewPlayer(ctx context.Context, sess spirc.Session, cfg spirc.PlayerConfig) (spirc.Player, spirc.Mixer, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if e.playerErr != nil {
		return nil, nil, e.playerErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if _, ok := sess.(*Session); !ok {
		return nil, nil, fmt.Errorf("virtual: foreign session %T", sess)
	}
	return &Player{events: queue.New[event.PlayerEvent]()}, &Mixer{}, nil
}

// NewRemote builds the remote-control object and its background task.
func (e *Engine) NewRemote(ctx context.Context, cfg spirc.ConnectConfig, sess spirc.Session, _ spirc.Credentials, player spirc.Player, mixer spirc.Mixer) (spirc.Remote, spirc.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if e.remoteErr != nil {
		return nil, nil, e.remoteErr
	}
	p, ok := player.(*Player)
	if !ok {
		return nil, nil, fmt.Errorf("virtual: foreign player %T", player)
	}
	if len(e.tracks) == 0 {
		return nil, nil, fmt.Errorf("virtual: empty track list")
	}
	mixer.SetVolume(uint16(uint32(cfg.InitialVolume) * 65535 / 100))

	task := &Task{stop: make(chan struct{})}
	r := &Remote{
		sess:       sess,
		player:     p,
		mixer:      mixer,
		tracks:     e.tracks,
		durationMS: uint32(e.trackDuration / time.Millisecond),
		now:        e.now,
		task:       task,
	}

	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
	return r, task, nil
}

// Revoke ends every remote task created by this engine, as if the service
// had dropped the sessions.
func (e *Engine) Revoke() {
	e.mu.Lock()
	tasks := append([]*Task(nil), e.tasks...)
	e.mu.Unlock()
	for _, t := range tasks {
		t.end(ErrRevoked)
	}
}

// Session is an authenticated virtual session.
type Session struct {
	deviceID string
	username string
}

// DeviceID returns a stable id derived from the username.
func (s *Session) DeviceID() string { return s.deviceID }

// Token mints a bearer token covering scopes.
func (s *Session) Token(ctx context.Context, scopes []string) (spirc.Token, error) {
	if err := ctx.Err(); err != nil {
		return spirc.Token{}, err
	}
	return spirc.Token{
		AccessToken: strings.ReplaceAll(uuid.NewString(), "-", ""),
		TokenType:   "Bearer",
		ExpiresIn:   time.Hour,
		Scopes:      append([]string(nil), scopes...),
	}, nil
}

// Player exposes the simulated event stream.
type Player struct {
	events *queue.Queue[event.PlayerEvent]
}

// Events returns the player's event stream.
func (p *Player) Events() spirc.EventStream { return stream{q: p.events} }

type stream struct {
	q *queue.Queue[event.PlayerEvent]
}

func (s stream) Recv() (event.PlayerEvent, bool) { return s.q.Pop() }

// Mixer stores the output volume.
type Mixer struct {
	mu     sync.Mutex
	volume uint16
}

// Volume returns the current volume.
func (m *Mixer) Volume() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// SetVolume stores v.
func (m *Mixer) SetVolume(v uint16) {
	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
}

// Task blocks until the remote shuts down, the session is revoked or ctx ends.
type Task struct {
	once sync.Once
	err  error
	stop chan struct{}
}

// Run implements spirc.Task.
func (t *Task) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-t.stop:
		return t.err
	}
}

func (t *Task) end(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.stop)
	})
}
