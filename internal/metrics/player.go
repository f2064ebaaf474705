// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenLookupsTotal counts access-token lookups by source (cache/session).
	TokenLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_token_lookups_total",
		Help: "Total number of access token lookups, by source (cache/session) and result.",
	}, []string{"source", "result"})

	// WebAPIRequestsTotal counts Web API calls by operation and status class.
	WebAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_webapi_requests_total",
		Help: "Total number of Web API requests, by operation and status class.",
	}, []string{"operation", "status"})
)

// RecordTokenLookup counts a token lookup.
func RecordTokenLookup(source, result string) {
	TokenLookupsTotal.WithLabelValues(source, result).Inc()
}

// RecordWebAPIRequest counts a Web API call.
func RecordWebAPIRequest(operation, status string) {
	WebAPIRequestsTotal.WithLabelValues(operation, status).Inc()
}
