package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_pool_opens_total",
			Help: "Total number of backend handles opened",
		},
		[]string{"kind"},
	)

	OpenFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybroker_pool_open_failures_total",
			Help: "Total number of failed backend handle opens",
		},
		[]string{"kind"},
	)
)
