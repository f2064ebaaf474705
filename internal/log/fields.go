// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldCommandID     = "command_id"
	FieldDeviceID      = "device_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldOutcome   = "outcome"

	// Playback fields
	FieldTrackID       = "track_id"
	FieldPlayRequestID = "play_request_id"
	FieldPositionMS    = "position_ms"
	FieldVolume        = "volume"

	// Bridge fields
	FieldQueueDepth = "queue_depth"
	FieldPanic      = "panic"
)
