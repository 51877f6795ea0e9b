// Package metrics exposes Prometheus instrumentation for the search engine.
// Collectors register on the default registry; serve mode mounts them at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dragnet_searches_total",
			Help: "Total number of searches executed",
		},
		[]string{"jurisdiction", "input_type"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dragnet_search_duration_seconds",
			Help: "Wall-clock duration of one full search round",
		},
		[]string{"jurisdiction"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dragnet_fetches_total",
			Help: "Per-source fetch outcomes by delivery path and result",
		},
		[]string{"via", "result"},
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dragnet_extractions_total",
			Help: "Extractions by mode: schema, fallback, or heuristic",
		},
		[]string{"mode"},
	)

	ResultsPerSearch = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "dragnet_results_per_search",
			Help: "Merged result count per search",
		},
	)
)
