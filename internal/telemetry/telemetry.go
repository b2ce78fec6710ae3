// Package telemetry exposes the Prometheus instrumentation shared by the
// ingestion and query paths.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricNamespace = "hookstats"

const (
	eventTypeLabel = "event_type"
	statusLabel    = "status"
	endpointLabel  = "endpoint"
)

type Collector struct {
	IngestedEvents *prometheus.CounterVec
	DroppedReplays prometheus.Counter
	QueryDuration  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		IngestedEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "ingested_webhooks_total",
				Help:      "count of stored webhook deliveries",
			},
			[]string{eventTypeLabel, statusLabel},
		),
		DroppedReplays: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "dropped_redeliveries_total",
				Help:      "count of deliveries dropped as duplicates",
			},
		),
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "metrics_query_duration_seconds",
				Help:      "latency of the analytical endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{endpointLabel},
		),
	}
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
