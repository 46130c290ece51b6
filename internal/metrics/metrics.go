package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Name:      "events_total",
		Help:      "Number of events accepted for ingestion",
	}, []string{"kind"})

	Dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Name:      "events_dropped_total",
		Help:      "Number of events rejected during ingestion",
	}, []string{"kind", "reason"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Name:      "store_errors_total",
		Help:      "Number of failed store operations",
	}, []string{"op"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "beacon",
		Name:      "query_duration_seconds",
		Help:      "Time spent executing store queries",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	Flushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Name:      "rows_flushed_total",
		Help:      "Number of rows written by the batch writer",
	}, []string{"table"})
)

// Since records the time elapsed since start for op.
func Since(op string, start time.Time) {
	QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func New() http.Handler {
	return promhttp.Handler()
}
