// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package host

import (
	"sync"

	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/metrics"
)

// Listener receives event records on the loop goroutine.
type Listener func(rec event.Record)

// ListenerSlot holds the single host listener. Registration is
// last-write-wins. Records arriving while the slot is empty are kept in a
// bounded buffer (oldest dropped first) and flushed on the next registration.
//
// set and deliver only run on the loop goroutine; the mutex guards the
// read-only accessors used from other goroutines.
type ListenerSlot struct {
	mu       sync.Mutex
	fn       Listener
	pending  []event.Record
	capacity int
}

// Registered reports whether a listener is installed.
func (s *ListenerSlot) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// Pending returns the number of buffered records.
func (s *ListenerSlot) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *ListenerSlot) set(fn Listener) {
	s.mu.Lock()
	s.fn = fn
	var flush []event.Record
	if fn != nil {
		flush = s.pending
		s.pending = nil
	}
	s.mu.Unlock()

	for _, rec := range flush {
		fn(rec)
	}
}

func (s *ListenerSlot) deliver(rec event.Record) {
	s.mu.Lock()
	fn := s.fn
	if fn == nil {
		s.buffer(rec)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn(rec)
}

func (s *ListenerSlot) buffer(rec event.Record) {
	if s.capacity == 0 {
		metrics.IncListenerDrop("no_listener")
		return
	}
	if len(s.pending) >= s.capacity {
		n := copy(s.pending, s.pending[1:])
		s.pending = s.pending[:n]
		metrics.IncListenerDrop("buffer_full")
	}
	s.pending = append(s.pending, rec)
}
