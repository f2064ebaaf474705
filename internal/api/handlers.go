// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

const maxBodyBytes = 64 << 10

type seekRequest struct {
	PositionMS *uint32 `json:"position_ms"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
	Raw    bool     `json:"raw"`
}

type loadRequest struct {
	URIs []string `json:"uris"`
}

type volumeResponse struct {
	Volume float64 `json:"volume"`
	Raw    bool    `json:"raw"`
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	Expiry      int64    `json:"expiry"`
	Scopes      []string `json:"scopes"`
}

type metadataResponse struct {
	TrackURI  string `json:"track_uri"`
	CanvasID  string `json:"canvas_id,omitempty"`
	CanvasURL string `json:"canvas_url,omitempty"`
	Type      string `json:"type,omitempty"`
	Explicit  bool   `json:"explicit"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}
	return nil
}

// simple adapts a no-argument player command.
func (s *Server) simple(op string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			s.fail(w, r, op, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, "seek", err)
		return
	}
	if req.PositionMS == nil {
		s.fail(w, r, "seek", fmt.Errorf("%w: position_ms is required", errBadBody))
		return
	}
	if err := s.ctrl.Seek(r.Context(), *req.PositionMS); err != nil {
		s.fail(w, r, "seek", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, "set_volume", err)
		return
	}
	if req.Volume == nil {
		s.fail(w, r, "set_volume", fmt.Errorf("%w: volume is required", errBadBody))
		return
	}
	if err := s.ctrl.SetVolume(r.Context(), *req.Volume, req.Raw); err != nil {
		s.fail(w, r, "set_volume", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	raw, _ := strconv.ParseBool(r.URL.Query().Get("raw"))
	v, err := s.ctrl.Volume(r.Context(), raw)
	if err != nil {
		s.fail(w, r, "volume", err)
		return
	}
	writeJSON(w, http.StatusOK, volumeResponse{Volume: v, Raw: raw})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, "load", err)
		return
	}
	if err := s.ctrl.Load(r.Context(), req.URIs...); err != nil {
		s.fail(w, r, "load", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// handleToken accepts repeated scope parameters; none means the defaults.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.ctrl.Token(r.Context(), r.URL.Query()["scope"]...)
	if err != nil {
		s.fail(w, r, "token", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
		Expiry:      tok.ExpiryFromEpoch,
		Scopes:      tok.Scopes,
	})
}

// handleMetadata answers 204 for URIs that are valid but not tracks.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.fail(w, r, "metadata", fmt.Errorf("%w: uri is required", errBadBody))
		return
	}
	md, ok, err := s.ctrl.Metadata(r.Context(), uri)
	if err != nil {
		s.fail(w, r, "metadata", err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, metadataResponse{
		TrackURI:  md.TrackURI,
		CanvasID:  md.CanvasID,
		CanvasURL: md.CanvasURL,
		Type:      md.Type,
		Explicit:  md.Explicit,
	})
}
