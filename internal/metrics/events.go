// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsForwardedTotal counts player events handed to the host loop, by event tag.
	EventsForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_bridge_events_forwarded_total",
		Help: "Total number of player events forwarded to the host, by event tag.",
	}, []string{"event"})

	// ListenerDroppedTotal counts event records the host could not deliver.
	ListenerDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_bridge_listener_dropped_total",
		Help: "Total number of event records dropped before reaching a listener, by reason.",
	}, []string{"reason"})

	// HostCallbackPanicsTotal counts recovered panics in host loop callbacks.
	HostCallbackPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connect_host_callback_panics_total",
		Help: "Total number of panics recovered while running host loop callbacks.",
	})
)

// IncEventForwarded records a forwarded event with the given tag.
func IncEventForwarded(tag string) {
	if tag == "" {
		tag = "unknown"
	}
	EventsForwardedTotal.WithLabelValues(tag).Inc()
}

// IncListenerDrop records a dropped record with a concrete reason
// ("buffer_full", "loop_closed").
func IncListenerDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	ListenerDroppedTotal.WithLabelValues(reason).Inc()
}
