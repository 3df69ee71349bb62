package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_requests_total",
			Help: "Total number of questions processed, by target kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybroker_request_duration_seconds",
			Help:    "Duration of the question pipeline",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"kind"},
	)

	GuardRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_guard_rejections_total",
			Help: "Total number of candidates refused by the read-only guard",
		},
		[]string{"kind"},
	)

	RowsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybroker_rows_returned",
			Help:    "Number of rows returned per question",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"kind"},
	)
)
