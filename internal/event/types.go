// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

// PlayerEvent is the closed set of state-change notifications emitted by a
// session's player. The unexported marker keeps the set closed.
type PlayerEvent interface {
	playerEvent()
}

// Stopped reports that playback of a request stopped.
type Stopped struct {
	PlayRequestID uint64
	TrackID       TrackID
}

// Started reports that a play request started.
type Started struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
}

// Changed reports that the current track was replaced.
type Changed struct {
	OldTrackID TrackID
	NewTrackID TrackID
}

// Loading reports that a track is being loaded.
type Loading struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
}

// Preloading reports that the next track is being preloaded.
type Preloading struct {
	TrackID TrackID
}

// Playing reports that audio is playing.
type Playing struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
	DurationMS    uint32
}

// Paused reports that playback is paused.
type Paused struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
	DurationMS    uint32
}

// TimeToPreloadNextTrack reports that the next track should be preloaded.
type TimeToPreloadNextTrack struct {
	PlayRequestID uint64
	TrackID       TrackID
}

// EndOfTrack reports that the current track finished.
type EndOfTrack struct {
	PlayRequestID uint64
	TrackID       TrackID
}

// Unavailable reports that a track cannot be played.
type Unavailable struct {
	PlayRequestID uint64
	TrackID       TrackID
}

// VolumeSet reports a new mixer volume (0..65535).
type VolumeSet struct {
	Volume uint16
}

func (Stopped) playerEvent()                {}
func (Started) playerEvent()                {}
func (Changed) playerEvent()                {}
func (Loading) playerEvent()                {}
func (Preloading) playerEvent()             {}
func (Playing) playerEvent()                {}
func (Paused) playerEvent()                 {}
func (TimeToPreloadNextTrack) playerEvent() {}
func (EndOfTrack) playerEvent()             {}
func (Unavailable) playerEvent()            {}
func (VolumeSet) playerEvent()              {}
