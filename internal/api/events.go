// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
)

// handleEvents streams event records as server-sent events. The first
// message is a "state" snapshot. Slow clients lose records rather than
// stalling the host loop.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, r, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	records := make(chan event.Record, eventStreamBuffer)
	unsubscribe := s.ctrl.On(func(rec event.Record) {
		select {
		case records <- rec:
		default:
			metrics.IncListenerDrop("sse_slow_client")
		}
	})
	defer unsubscribe()

	metrics.EventStreamsActive.Inc()
	defer metrics.EventStreamsActive.Dec()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := xglog.WithContext(r.Context(), s.logger)
	if err := writeEvent(w, "state", s.ctrl.State()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopping:
			return
		case <-s.ctrl.Done():
			_ = writeEvent(w, "closed", map[string]string{"reason": "bridge stopped"})
			flusher.Flush()
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case rec := <-records:
			if err := writeEvent(w, recordTag(rec), rec); err != nil {
				logger.Debug().Err(err).Str(xglog.FieldEvent, "api.sse_write_failed").Msg("event stream closed")
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
