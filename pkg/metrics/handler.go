// Copyright 2025 Certen Protocol

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the /metrics HTTP handler for reg, for mounting
// alongside pkg/server's other handlers (e.g.
// mux.Handle("/metrics", metrics.Handler(reg))).
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
