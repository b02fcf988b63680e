package repo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queryDuration tracks aggregation latency by scope
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adperf_query_duration_seconds",
		Help:    "Aggregation query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"scope"})

	// queryRows counts segment rows returned by scope
	queryRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adperf_query_rows_total",
		Help: "Total segment rows returned by aggregation queries",
	}, []string{"scope"})

	// queryErrors counts failures by kind
	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adperf_query_errors_total",
		Help: "Total aggregation query failures by kind",
	}, []string{"kind"}) // execution, timeout, parse
)
