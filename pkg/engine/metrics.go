package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TermgraphQueriesTotal counts engine operations by outcome
	TermgraphQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termgraph_queries_total",
			Help: "Total number of term graph queries processed",
		},
		[]string{"operation", "outcome"},
	)

	// TermgraphQueryDuration tracks engine operation latency, store time included
	TermgraphQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termgraph_query_duration_seconds",
			Help:    "Duration of term graph queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// TermgraphResultSize tracks the size of candidate sets before paging
	TermgraphResultSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termgraph_result_size",
			Help:    "Number of terms produced by a query before pagination",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(TermgraphQueriesTotal)
	prometheus.MustRegister(TermgraphQueryDuration)
	prometheus.MustRegister(TermgraphResultSize)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTermNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func observe(op string, start time.Time, err error) {
	TermgraphQueriesTotal.WithLabelValues(op, outcome(err)).Inc()
	TermgraphQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
