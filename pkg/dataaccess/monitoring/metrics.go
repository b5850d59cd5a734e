package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreLatency is the duration of store queries.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dataaccess_store_latency",
			Help: "Duration of store queries",
		},
		[]string{"dal", "query", "backend", "table"},
	)

	// StoreTotalRequests is the total number of store requests.
	StoreTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataaccess_store_total_requests",
			Help: "Total number of store requests",
		},
		[]string{"dal", "query", "backend", "table"},
	)

	// StoreErrors is the total number of failed store requests.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataaccess_store_errors",
			Help: "Total number of failed store requests",
		},
		[]string{"dal", "query", "backend", "table"},
	)
)

// Observe counts a request and returns a function that records its latency and outcome.
//
//	done := monitoring.Observe("ticket_dal", "insert_ticket", "sqlite", "tickets")
//	defer func() { done(err) }()
func Observe(dal, query, backend, table string) func(error) {
	StoreTotalRequests.WithLabelValues(dal, query, backend, table).Inc()
	t := prometheus.NewTimer(StoreLatency.WithLabelValues(dal, query, backend, table))
	return func(err error) {
		t.ObserveDuration()
		if err != nil {
			StoreErrors.WithLabelValues(dal, query, backend, table).Inc()
		}
	}
}
