// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

import (
	"bytes"
	"encoding/json"
)

// Record field names. These are part of the host contract.
const (
	KeyEvent         = "event"
	KeyPlayRequestID = "play_request_id"
	KeyTrackID       = "track_id"
	KeyOldTrackID    = "old_track_id"
	KeyNewTrackID    = "new_track_id"
	KeyPositionMS    = "position_ms"
	KeyDurationMS    = "duration_ms"
	KeyVolume        = "volume"
)

// Field is one key/value pair of a Record. Value is a string or an unsigned
// integer of the event's native width.
type Field struct {
	Key   string
	Value any
}

// Record is an ordered mapping from field name to primitive value.
type Record []Field

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Tag returns the "event" field, or "" if absent.
func (r Record) Tag() string {
	v, _ := r.Get(KeyEvent)
	s, _ := v.(string)
	return s
}

// Keys returns the field names in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// String returns the string value under key, or "".
func (r Record) String(key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

// Uint returns the numeric value under key widened to uint64.
func (r Record) Uint(key string) (uint64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	}
	return 0, false
}

// MarshalJSON encodes the record as a JSON object preserving field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
