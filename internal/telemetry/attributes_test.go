// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestHTTPAttributes(t *testing.T) {
	m := attrMap(HTTPAttributes("POST", "/api/v1/player/play", 202))
	require.Len(t, m, 3)
	assert.Equal(t, "POST", m[HTTPMethodKey].AsString())
	assert.Equal(t, "/api/v1/player/play", m[HTTPRouteKey].AsString())
	assert.Equal(t, int64(202), m[HTTPStatusCodeKey].AsInt64())
}

func TestCommandAttributes(t *testing.T) {
	m := attrMap(CommandAttributes("c-1", "invoke", 3))
	assert.Equal(t, "c-1", m[CommandIDKey].AsString())
	assert.Equal(t, "invoke", m[CommandKindKey].AsString())
	assert.Equal(t, int64(3), m[QueueDepthKey].AsInt64())
}

func TestPlayerAttributes(t *testing.T) {
	assert.Len(t, PlayerAttributes("pause", ""), 1)

	m := attrMap(PlayerAttributes("load", "dev", "spotify:track:x"))
	assert.Equal(t, "dev", m[DeviceIDKey].AsString())
	assert.Equal(t, []string{"spotify:track:x"}, m[TrackURIKey].AsStringSlice())
}

func TestErrorAttributes(t *testing.T) {
	m := attrMap(ErrorAttributes("panic"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "panic", m[ErrorTypeKey].AsString())
}
