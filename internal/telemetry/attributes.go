// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by all spans.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Bridge attributes
	CommandIDKey      = "bridge.command.id"
	CommandKindKey    = "bridge.command.kind"
	CommandOutcomeKey = "bridge.command.outcome"
	QueueDepthKey     = "bridge.queue.depth"
	BootstrapStageKey = "bridge.bootstrap.stage"
	DeviceIDKey       = "connect.device_id"

	// Player attributes
	PlayerOperationKey = "player.operation"
	TrackURIKey        = "player.track_uri"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// CommandAttributes describes one dispatched command.
func CommandAttributes(id, kind string, queueDepth int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CommandIDKey, id),
		attribute.String(CommandKindKey, kind),
		attribute.Int(QueueDepthKey, queueDepth),
	}
}

// PlayerAttributes describes a host-facing player operation. Empty values are omitted.
func PlayerAttributes(operation, deviceID string, uris ...string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(PlayerOperationKey, operation)}
	if deviceID != "" {
		attrs = append(attrs, attribute.String(DeviceIDKey, deviceID))
	}
	if len(uris) > 0 {
		attrs = append(attrs, attribute.StringSlice(TrackURIKey, uris))
	}
	return attrs
}

// ErrorAttributes flags a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
