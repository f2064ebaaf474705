// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestContextIDs(t *testing.T) {
	tests := []struct {
		name string
		set  func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"request", ContextWithRequestID, RequestIDFromContext},
		{"correlation", ContextWithCorrelationID, CorrelationIDFromContext},
		{"command", ContextWithCommandID, CommandIDFromContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			//nolint:staticcheck // nil context is part of the contract
			assert.Equal(t, "id-1", tt.get(tt.set(nil, "id-1")))
			assert.Equal(t, "id-2", tt.get(tt.set(context.Background(), "id-2")))
			assert.Equal(t, "", tt.get(context.Background()))
			//nolint:staticcheck
			assert.Equal(t, "", tt.get(nil))
		})
	}
}

func TestRequestIDFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), requestIDKey, 123)
	assert.Equal(t, "", RequestIDFromContext(ctx))
}

func TestWithContext_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCommandID(ctx, "cmd-7")
	cl := WithContext(ctx, l)
	cl.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "cmd-7", entry[FieldCommandID])
	assert.NotContains(t, entry, FieldCorrelationID)
}

func TestWithContext_EmptyContextKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	cl := WithContext(context.Background(), l)
	cl.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Len(t, entry, 2) // level + message
}

func TestDerive(t *testing.T) {
	l := Derive(nil)
	assert.LessOrEqual(t, l.GetLevel(), zerolog.PanicLevel)

	l = Derive(func(ctx *zerolog.Context) {
		ctx.Str("custom_field", "test_value")
	})
	assert.LessOrEqual(t, l.GetLevel(), zerolog.PanicLevel)
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	assert.True(t, SetLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.False(t, SetLevel("loud"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestWithTraceContext(t *testing.T) {
	noopTracer := noop.NewTracerProvider().Tracer("test")
	ctx, span := noopTracer.Start(context.Background(), "test-span")
	defer span.End()
	l := WithTraceContext(ctx)
	assert.LessOrEqual(t, l.GetLevel(), zerolog.PanicLevel)

	t.Run("valid span", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		var buf bytes.Buffer
		Configure(Config{})
		mu.Lock()
		saved := base
		base = zerolog.New(&buf)
		mu.Unlock()
		t.Cleanup(func() {
			mu.Lock()
			base = saved
			mu.Unlock()
		})

		tl := WithTraceContext(ctx)
		tl.Info().Msg("with trace")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	})
}
