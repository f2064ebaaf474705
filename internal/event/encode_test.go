// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTrack(t *testing.T, b62 string) TrackID {
	t.Helper()
	id, err := ParseBase62(ItemTypeTrack, b62)
	require.NoError(t, err)
	return id
}

func TestEncode_AllVariants(t *testing.T) {
	a := mustTrack(t, "4GNcXTGWmnZ3ySrqvol3o4")
	b := mustTrack(t, "6rqhFgbbKwnb9MLmUQDhG6")
	uriA, _ := a.URI()
	uriB, _ := b.URI()

	tests := []struct {
		name string
		ev   PlayerEvent
		want Record
	}{
		{"stopped", Stopped{PlayRequestID: 3, TrackID: a}, Record{
			{KeyEvent, "stopped"}, {KeyPlayRequestID, uint64(3)}, {KeyTrackID, uriA},
		}},
		{"started", Started{PlayRequestID: 4, TrackID: a, PositionMS: 1500}, Record{
			{KeyEvent, "started"}, {KeyPlayRequestID, uint64(4)}, {KeyTrackID, uriA}, {KeyPositionMS, uint32(1500)},
		}},
		{"changed", Changed{OldTrackID: a, NewTrackID: b}, Record{
			{KeyEvent, "changed"}, {KeyOldTrackID, uriA}, {KeyNewTrackID, uriB},
		}},
		{"loading", Loading{PlayRequestID: 5, TrackID: b, PositionMS: 0}, Record{
			{KeyEvent, "loading"}, {KeyPlayRequestID, uint64(5)}, {KeyTrackID, uriB}, {KeyPositionMS, uint32(0)},
		}},
		{"preloading", Preloading{TrackID: b}, Record{
			{KeyEvent, "preloading"}, {KeyPlayRequestID, uint64(0)}, {KeyTrackID, uriB},
		}},
		{"playing", Playing{PlayRequestID: 6, TrackID: a, PositionMS: 10, DurationMS: 200000}, Record{
			{KeyEvent, "playing"}, {KeyPlayRequestID, uint64(6)}, {KeyTrackID, uriA},
			{KeyPositionMS, uint32(10)}, {KeyDurationMS, uint32(200000)},
		}},
		{"paused", Paused{PlayRequestID: 7, TrackID: a, PositionMS: 20, DurationMS: 200000}, Record{
			{KeyEvent, "paused"}, {KeyPlayRequestID, uint64(7)}, {KeyTrackID, uriA},
			{KeyPositionMS, uint32(20)}, {KeyDurationMS, uint32(200000)},
		}},
		{"preload", TimeToPreloadNextTrack{PlayRequestID: 8, TrackID: a}, Record{
			{KeyEvent, "preload"}, {KeyPlayRequestID, uint64(8)}, {KeyTrackID, uriA},
		}},
		{"ended", EndOfTrack{PlayRequestID: 9, TrackID: a}, Record{
			{KeyEvent, "ended"}, {KeyPlayRequestID, uint64(9)}, {KeyTrackID, uriA},
		}},
		{"unavailable", Unavailable{PlayRequestID: 10, TrackID: b}, Record{
			{KeyEvent, "unavailable"}, {KeyPlayRequestID, uint64(10)}, {KeyTrackID, uriB},
		}},
		{"volume", VolumeSet{Volume: 32768}, Record{
			{KeyEvent, "volume"}, {KeyVolume, uint16(32768)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.ev)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.name, got.Tag())
		})
	}
}

func TestEncode_ChangedHasNoPlayRequestID(t *testing.T) {
	rec := Encode(Changed{})
	assert.False(t, rec.Has(KeyPlayRequestID))
	assert.False(t, rec.Has(KeyTrackID))
	assert.Equal(t, []string{KeyEvent, KeyOldTrackID, KeyNewTrackID}, rec.Keys())
}

func TestEncode_VolumeHasNoTrackID(t *testing.T) {
	rec := Encode(VolumeSet{Volume: 1})
	assert.Equal(t, []string{KeyEvent, KeyVolume}, rec.Keys())
}

func TestEncode_UnrenderableTrackIDBecomesEmpty(t *testing.T) {
	unknown := TrackID{Type: ItemTypeUnknown, ID: [16]byte{1, 2, 3}}
	_, err := unknown.URI()
	require.ErrorIs(t, err, ErrUnknownItemType)

	rec := Encode(Playing{PlayRequestID: 1, TrackID: unknown, PositionMS: 5, DurationMS: 6})
	v, ok := rec.Get(KeyTrackID)
	require.True(t, ok)
	assert.Equal(t, "", v)

	rec = Encode(Changed{OldTrackID: unknown, NewTrackID: unknown})
	assert.Equal(t, "", rec.String(KeyOldTrackID))
	assert.Equal(t, "", rec.String(KeyNewTrackID))
}

func TestEncode_Nil(t *testing.T) {
	assert.Nil(t, Encode(nil))
}

func TestRecord_MarshalJSONKeepsOrderAndNumbers(t *testing.T) {
	rec := Encode(Started{PlayRequestID: 42, TrackID: TrackID{}, PositionMS: 7})
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"started","play_request_id":42,"track_id":"","position_ms":7}`, string(raw))
}

func TestRecord_Uint(t *testing.T) {
	rec := Encode(Paused{PlayRequestID: 2, PositionMS: 3, DurationMS: 4})
	n, ok := rec.Uint(KeyPlayRequestID)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), n)
	n, ok = rec.Uint(KeyDurationMS)
	assert.True(t, ok)
	assert.Equal(t, uint64(4), n)
	_, ok = rec.Uint(KeyTrackID)
	assert.False(t, ok)
	_, ok = rec.Uint(KeyVolume)
	assert.False(t, ok)
}
