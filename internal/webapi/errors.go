// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized   = errors.New("webapi: unauthorized")
	ErrForbidden      = errors.New("webapi: forbidden")
	ErrNoActiveDevice = errors.New("webapi: device not found")
	ErrRateLimited    = errors.New("webapi: rate limited")
	ErrUpstream       = errors.New("webapi: upstream error")
	ErrBadRequest     = errors.New("webapi: bad request")
	ErrInvalidURI     = errors.New("webapi: invalid uri")
)

// APIError is a non-2xx Web API response.
type APIError struct {
	Sentinel   error
	Operation  string
	Status     int
	Message    string
	Reason     string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("webapi: %s: HTTP %d", e.Operation, e.Status)
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Sentinel }

func sentinelFor(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNoActiveDevice
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrUpstream
	default:
		return ErrBadRequest
	}
}
