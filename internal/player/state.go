// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"sync"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
)

// State is a snapshot of what the event stream has reported so far.
type State struct {
	TrackURI      string `json:"track_uri,omitempty"`
	PlayRequestID uint64 `json:"play_request_id"`
	Playing       bool   `json:"playing"`
	PositionMS    uint32 `json:"position_ms"`
	DurationMS    uint32 `json:"duration_ms"`
	Volume        uint16 `json:"volume"`
	DeviceID      string `json:"device_id,omitempty"`
}

// tracker folds event records into a State. Position is extrapolated from
// the last report while playing.
type tracker struct {
	now func() time.Time

	mu      sync.Mutex
	state   State
	updated time.Time
}

func newTracker(now func() time.Time) *tracker {
	return &tracker{now: now}
}

func (t *tracker) apply(rec event.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.state
	if id, ok := rec.Uint(event.KeyPlayRequestID); ok && id != 0 {
		s.PlayRequestID = id
	}
	if uri := rec.String(event.KeyTrackID); uri != "" {
		s.TrackURI = uri
	}
	if pos, ok := rec.Uint(event.KeyPositionMS); ok {
		s.PositionMS = uint32(pos)
		t.updated = t.now()
	}
	if d, ok := rec.Uint(event.KeyDurationMS); ok {
		s.DurationMS = uint32(d)
	}

	switch rec.Tag() {
	case event.TagPlaying:
		s.Playing = true
	case event.TagPaused, event.TagStopped, event.TagUnavailable, event.TagLoading:
		s.PositionMS = t.positionLocked()
		s.Playing = false
	case event.TagEnded:
		s.Playing = false
		s.PositionMS = s.DurationMS
	case event.TagChanged:
		s.TrackURI = rec.String(event.KeyNewTrackID)
		s.PositionMS = 0
		t.updated = t.now()
	case event.TagVolume:
		if v, ok := rec.Uint(event.KeyVolume); ok {
			s.Volume = uint16(v)
		}
	}
}

func (t *tracker) positionLocked() uint32 {
	s := t.state
	if !s.Playing {
		return s.PositionMS
	}
	pos := uint64(s.PositionMS) + uint64(t.now().Sub(t.updated)/time.Millisecond)
	if s.DurationMS > 0 && pos > uint64(s.DurationMS) {
		pos = uint64(s.DurationMS)
	}
	return uint32(pos)
}

func (t *tracker) position() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

func (t *tracker) snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.PositionMS = t.positionLocked()
	return s
}
