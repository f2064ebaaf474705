// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/connectbridge/internal/bridge"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/player"
	"github.com/ManuGH/connectbridge/internal/resilience"
	"github.com/ManuGH/connectbridge/internal/webapi"
)

// errBadBody is returned for unreadable request bodies.
var errBadBody = errors.New("api: malformed request body")

// Problem is the JSON error body.
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, Problem{
		Code:      code,
		Message:   msg,
		RequestID: xglog.RequestIDFromContext(r.Context()),
	})
}

// classify maps a control error to an HTTP status and problem code.
func classify(err error) (int, string) {
	var apiErr *webapi.APIError
	var cmdErr *bridge.CommandError
	switch {
	case errors.Is(err, errBadBody), errors.Is(err, webapi.ErrInvalidURI):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, bridge.ErrBridgeClosed), errors.Is(err, player.ErrClosed):
		return http.StatusServiceUnavailable, "bridge_closed"
	case errors.Is(err, bridge.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "command_timeout"
	case errors.As(err, &cmdErr) && cmdErr.Panic != nil:
		return http.StatusInternalServerError, "command_panic"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	case errors.Is(err, webapi.ErrNoActiveDevice):
		return http.StatusNotFound, "device_not_found"
	case errors.Is(err, webapi.ErrRateLimited):
		return http.StatusTooManyRequests, "upstream_rate_limited"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.Canceled):
		return 499, "client_closed"
	default:
		return http.StatusConflict, "command_failed"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	logger := xglog.WithContext(r.Context(), s.logger)
	ev := logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).
		Str(xglog.FieldEvent, "api.command_failed").
		Str(xglog.FieldOperation, op).
		Int("status", status).
		Msg("player command failed")
	writeProblem(w, r, status, code, err.Error())
}
