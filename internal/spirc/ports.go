// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package spirc defines the boundary to the wrapped connect session engine.
//
// The engine itself (authentication, audio decoding, the remote-control
// protocol) is an external collaborator. This package only names what the
// bridge needs from it; the virtual subpackage provides an in-process
// implementation.
package spirc

import (
	"context"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
)

// Credentials authenticate a session.
type Credentials struct {
	Username string
	Password string
	AuthType string
}

// Token is an access token minted by an authenticated session.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
	Scopes      []string
}

// Metadata is the canvas attached to a track: the short looping visual
// clients show while it plays. A track without one has an empty CanvasURL.
type Metadata struct {
	TrackURI  string
	CanvasID  string
	CanvasURL string
	// Type is the canvas media kind, e.g. VIDEO_LOOPING or IMAGE.
	Type     string
	Explicit bool
}

// Session is an authenticated connection to the service.
type Session interface {
	DeviceID() string
	Token(ctx context.Context, scopes []string) (Token, error)
}

// EventStream is an ordered, blocking sequence of player events.
// Recv returns false once no more events will ever arrive.
type EventStream interface {
	Recv() (event.PlayerEvent, bool)
}

// Player is the playback engine bound to a session.
type Player interface {
	Events() EventStream
}

// Mixer controls output volume.
type Mixer interface {
	Volume() uint16
	SetVolume(v uint16)
}

// Remote is the stateful remote-control session object. It is not safe for
// concurrent use; the bridge guarantees a single caller.
type Remote interface {
	Play() error
	Pause() error
	PlayPause() error
	Next() error
	Prev() error
	Seek(positionMS uint32) error
	SetVolume(volume uint16) error
	Volume() uint16
	DeviceID() string
	Token(ctx context.Context, scopes []string) (Token, error)
	Metadata(ctx context.Context, track event.TrackID) (Metadata, error)
	Shutdown() error
}

// Task is the remote's background protocol task. Run returns when ctx is
// cancelled or the remote session ends on its own (e.g. revoked).
type Task interface {
	Run(ctx context.Context) error
}

// Engine constructs sessions, players and remotes.
//
// The ctx passed to each constructor only bounds construction: it is
// cancelled when bootstrap finishes, successfully or not. Objects that
// outlive it must not tie their lifetime to it; a remote lives until
// Shutdown and its Task until the ctx given to Run ends.
type Engine interface {
	Authenticate(ctx context.Context, creds Credentials) (Session, error)
	NewPlayer(ctx context.Context, sess Session, cfg PlayerConfig) (Player, Mixer, error)
	NewRemote(ctx context.Context, cfg ConnectConfig, sess Session, creds Credentials, player Player, mixer Mixer) (Remote, Task, error)
}
