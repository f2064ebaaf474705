// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

// Event tags as seen by the host.
const (
	TagStopped     = "stopped"
	TagStarted     = "started"
	TagChanged     = "changed"
	TagLoading     = "loading"
	TagPreloading  = "preloading"
	TagPlaying     = "playing"
	TagPaused      = "paused"
	TagPreload     = "preload"
	TagEnded       = "ended"
	TagUnavailable = "unavailable"
	TagVolume      = "volume"
)

// Encode maps a player event to its host record. It is pure and total;
// a nil event yields a nil record.
func Encode(ev PlayerEvent) Record {
	switch e := ev.(type) {
	case Stopped:
		return base(TagStopped, e.PlayRequestID, e.TrackID)
	case Started:
		return append(base(TagStarted, e.PlayRequestID, e.TrackID),
			Field{KeyPositionMS, e.PositionMS})
	case Changed:
		return Record{
			{KeyEvent, TagChanged},
			{KeyOldTrackID, renderTrackID(e.OldTrackID)},
			{KeyNewTrackID, renderTrackID(e.NewTrackID)},
		}
	case Loading:
		return append(base(TagLoading, e.PlayRequestID, e.TrackID),
			Field{KeyPositionMS, e.PositionMS})
	case Preloading:
		return base(TagPreloading, 0, e.TrackID)
	case Playing:
		return append(base(TagPlaying, e.PlayRequestID, e.TrackID),
			Field{KeyPositionMS, e.PositionMS},
			Field{KeyDurationMS, e.DurationMS})
	case Paused:
		return append(base(TagPaused, e.PlayRequestID, e.TrackID),
			Field{KeyPositionMS, e.PositionMS},
			Field{KeyDurationMS, e.DurationMS})
	case TimeToPreloadNextTrack:
		return base(TagPreload, e.PlayRequestID, e.TrackID)
	case EndOfTrack:
		return base(TagEnded, e.PlayRequestID, e.TrackID)
	case Unavailable:
		return base(TagUnavailable, e.PlayRequestID, e.TrackID)
	case VolumeSet:
		return Record{
			{KeyEvent, TagVolume},
			{KeyVolume, e.Volume},
		}
	}
	return nil
}

// base builds the event/play_request_id/track_id prefix shared by most variants.
// Capacity leaves room for the optional position and duration fields.
func base(tag string, playRequestID uint64, id TrackID) Record {
	r := make(Record, 0, 5)
	return append(r,
		Field{KeyEvent, tag},
		Field{KeyPlayRequestID, playRequestID},
		Field{KeyTrackID, renderTrackID(id)},
	)
}

func renderTrackID(id TrackID) string {
	uri, err := id.URI()
	if err != nil {
		return ""
	}
	return uri
}
