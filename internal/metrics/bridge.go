// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the connect bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No command or track identifiers in labels.

var (
	// CommandsSubmittedTotal counts commands accepted or refused by the command queue.
	CommandsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_bridge_commands_submitted_total",
		Help: "Total number of commands submitted to the bridge, by result (accepted/closed).",
	}, []string{"result"})

	// CommandsCompletedTotal counts dispatched commands by outcome.
	CommandsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_bridge_commands_completed_total",
		Help: "Total number of commands executed by the dispatcher, by outcome (ok/panic).",
	}, []string{"outcome"})

	// CommandDuration tracks how long a command's work held the session.
	CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "connect_bridge_command_duration_seconds",
		Help:    "Time a command spent executing against the session.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	// QueueDepth tracks commands waiting for the dispatcher.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connect_bridge_queue_depth",
		Help: "Current number of commands waiting in the bridge queue.",
	})

	// BootstrapTotal counts bootstrap attempts by outcome.
	BootstrapTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_bridge_bootstrap_total",
		Help: "Total number of bridge bootstrap attempts, by outcome (success/failure/timeout).",
	}, []string{"outcome"})

	// BootstrapDuration tracks the time until the bootstrap rendezvous fired.
	BootstrapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connect_bridge_bootstrap_duration_seconds",
		Help:    "Time taken for the session bootstrap to report readiness or failure.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"outcome"})

	// ActiveBridges tracks bridges whose dispatcher is still running.
	ActiveBridges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connect_bridge_active",
		Help: "Current number of running bridges.",
	})
)

// RecordSubmit counts a submission attempt.
func RecordSubmit(accepted bool) {
	if accepted {
		CommandsSubmittedTotal.WithLabelValues("accepted").Inc()
		return
	}
	CommandsSubmittedTotal.WithLabelValues("closed").Inc()
}

// RecordCommand counts a finished command and observes its duration.
func RecordCommand(outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	CommandsCompletedTotal.WithLabelValues(outcome).Inc()
	CommandDuration.Observe(d.Seconds())
}

// RecordBootstrap counts a bootstrap attempt and observes its duration.
func RecordBootstrap(outcome string, d time.Duration) {
	BootstrapTotal.WithLabelValues(outcome).Inc()
	BootstrapDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
