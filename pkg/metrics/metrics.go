// Package metrics defines Prometheus metrics for the portrait engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "montage_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "montage_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	Nodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "montage_nodes",
			Help: "Live portrait nodes by type",
		},
		[]string{"type"},
	)

	Edges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "montage_edges",
			Help: "Edges in the diagram",
		},
	)

	Deletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "montage_deletions_total",
			Help: "Node deletions by outcome",
		},
		[]string{"outcome"},
	)

	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "montage_reconciliations_total",
			Help: "Node reconciliations by result",
		},
		[]string{"result"},
	)

	PostProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "montage_postprocess_duration_seconds",
			Help:    "Field post-processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"processor"},
	)

	StaleViews = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "montage_stale_views_total",
			Help: "Views re-rendered after a graph change",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal,
		Nodes, Edges,
		Deletions, Reconciliations, PostProcessDuration, StaleViews,
	)
}
