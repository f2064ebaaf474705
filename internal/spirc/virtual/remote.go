// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package virtual

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/google/uuid"
)

// prevRestartMS is the position after which Prev restarts the current track.
const prevRestartMS = 3000

// Remote simulates the remote-control state machine. Like the real one it is
// not safe for concurrent use.
type Remote struct {
	sess   spirc.Session
	player *Player
	mixer  spirc.Mixer
	task   *Task
	now    func() time.Time

	tracks     []event.TrackID
	durationMS uint32

	idx           int
	loaded        bool
	playing       bool
	shutdown      bool
	playRequestID uint64
	positionMS    uint32
	startedAt     time.Time
}

// Inject pushes ev onto the player's event stream as if the engine emitted it.
func (p *Player) Inject(ev event.PlayerEvent) error {
	return p.events.Push(ev)
}

func (r *Remote) emit(ev event.PlayerEvent) {
	// Push only fails once Shutdown closed the stream.
	_ = r.player.events.Push(ev)
}

func (r *Remote) current() event.TrackID {
	return r.tracks[r.idx]
}

func (r *Remote) position() uint32 {
	if !r.playing {
		return r.positionMS
	}
	elapsed := uint64(r.now().Sub(r.startedAt) / time.Millisecond)
	pos := uint64(r.positionMS) + elapsed
	if pos > uint64(r.durationMS) {
		pos = uint64(r.durationMS)
	}
	return uint32(pos)
}

func (r *Remote) load(positionMS uint32) {
	r.playRequestID++
	r.loaded = true
	r.positionMS = positionMS
	r.startedAt = r.now()
	r.emit(event.Loading{PlayRequestID: r.playRequestID, TrackID: r.current(), PositionMS: positionMS})
	r.emit(event.Started{PlayRequestID: r.playRequestID, TrackID: r.current(), PositionMS: positionMS})
}

func (r *Remote) announce() {
	if r.playing {
		r.emit(event.Playing{PlayRequestID: r.playRequestID, TrackID: r.current(), PositionMS: r.positionMS, DurationMS: r.durationMS})
		return
	}
	r.emit(event.Paused{PlayRequestID: r.playRequestID, TrackID: r.current(), PositionMS: r.positionMS, DurationMS: r.durationMS})
}

// Play starts or resumes playback. Playing while already playing is a no-op.
func (r *Remote) Play() error {
	if r.shutdown {
		return ErrShutdown
	}
	if !r.loaded {
		r.load(0)
	} else if r.playing {
		return nil
	}
	r.playing = true
	r.startedAt = r.now()
	r.announce()
	return nil
}

// Pause pauses playback. Pausing a paused or empty player is a no-op.
func (r *Remote) Pause() error {
	if r.shutdown {
		return ErrShutdown
	}
	if !r.loaded || !r.playing {
		return nil
	}
	r.positionMS = r.position()
	r.playing = false
	r.announce()
	return nil
}

// PlayPause toggles between Play and Pause.
func (r *Remote) PlayPause() error {
	if r.playing {
		return r.Pause()
	}
	return r.Play()
}

// Next skips to the following track, wrapping at the end of the list.
func (r *Remote) Next() error {
	return r.skip(1)
}

// Prev restarts the current track when it is past the first seconds,
// otherwise goes back one track.
func (r *Remote) Prev() error {
	if r.shutdown {
		return ErrShutdown
	}
	if r.loaded && r.position() > prevRestartMS {
		return r.Seek(0)
	}
	return r.skip(-1)
}

func (r *Remote) skip(delta int) error {
	if r.shutdown {
		return ErrShutdown
	}
	old := r.current()
	n := len(r.tracks)
	r.idx = ((r.idx+delta)%n + n) % n
	r.emit(event.Changed{OldTrackID: old, NewTrackID: r.current()})
	r.load(0)
	r.announce()
	return nil
}

// Seek moves the playhead of the loaded track.
func (r *Remote) Seek(positionMS uint32) error {
	if r.shutdown {
		return ErrShutdown
	}
	if !r.loaded {
		return ErrNoTrack
	}
	if positionMS > r.durationMS {
		return fmt.Errorf("virtual: seek to %dms beyond track end %dms", positionMS, r.durationMS)
	}
	r.positionMS = positionMS
	r.startedAt = r.now()
	r.announce()
	return nil
}

// SetVolume sets the mixer volume and reports it.
func (r *Remote) SetVolume(volume uint16) error {
	if r.shutdown {
		return ErrShutdown
	}
	r.mixer.SetVolume(volume)
	r.emit(event.VolumeSet{Volume: volume})
	return nil
}

// Volume returns the mixer volume.
func (r *Remote) Volume() uint16 {
	return r.mixer.Volume()
}

// DeviceID returns the session's device id.
func (r *Remote) DeviceID() string {
	return r.sess.DeviceID()
}

// Token mints an access token through the session.
func (r *Remote) Token(ctx context.Context, scopes []string) (spirc.Token, error) {
	if r.shutdown {
		return spirc.Token{}, ErrShutdown
	}
	return r.sess.Token(ctx, scopes)
}

// Metadata returns the canvas for track. Only tracks carry one.
func (r *Remote) Metadata(ctx context.Context, track event.TrackID) (spirc.Metadata, error) {
	if r.shutdown {
		return spirc.Metadata{}, ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return spirc.Metadata{}, err
	}
	if track.Type != event.ItemTypeTrack {
		return spirc.Metadata{}, fmt.Errorf("%w: %s", ErrNotATrack, track)
	}
	uri, err := track.URI()
	if err != nil {
		return spirc.Metadata{}, err
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(uri))
	canvasID := strings.ReplaceAll(id.String(), "-", "")
	return spirc.Metadata{
		TrackURI:  uri,
		CanvasID:  canvasID,
		CanvasURL: "https://canvaz.scdn.co/upload/virtual/" + canvasID + ".cnvs.mp4",
		Type:      "VIDEO_LOOPING",
	}, nil
}

// Shutdown stops playback, ends the event stream and the remote task.
// Calling it again is a no-op.
func (r *Remote) Shutdown() error {
	if r.shutdown {
		return nil
	}
	r.shutdown = true
	if r.loaded {
		r.emit(event.Stopped{PlayRequestID: r.playRequestID, TrackID: r.current()})
	}
	r.playing = false
	r.player.events.Close()
	r.task.end(nil)
	return nil
}
