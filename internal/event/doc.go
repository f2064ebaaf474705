// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package event defines the player events produced by a connect session and
// their host-facing encoding.
//
// [Encode] maps every [PlayerEvent] variant to an ordered [Record]. The tag and
// field names of a Record are a wire contract with the host and must not be
// renamed:
//
//	Stopped                {event:"stopped",     play_request_id, track_id}
//	Started                {event:"started",     play_request_id, track_id, position_ms}
//	Changed                {event:"changed",     old_track_id, new_track_id}
//	Loading                {event:"loading",     play_request_id, track_id, position_ms}
//	Preloading             {event:"preloading",  play_request_id (always 0), track_id}
//	Playing                {event:"playing",     play_request_id, track_id, position_ms, duration_ms}
//	Paused                 {event:"paused",      play_request_id, track_id, position_ms, duration_ms}
//	TimeToPreloadNextTrack {event:"preload",     play_request_id, track_id}
//	EndOfTrack             {event:"ended",       play_request_id, track_id}
//	Unavailable            {event:"unavailable", play_request_id, track_id}
//	VolumeSet              {event:"volume",      volume}
//
// Track IDs are rendered with [TrackID.URI]; a rendering failure becomes the
// empty string and is never reported.
package event
