// Package observability exposes Prometheus metrics for the annotation
// reconciliation pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors registered by the application.
type Metrics struct {
	registry *prometheus.Registry

	ReconcileTotal    *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	SaveTotal         *prometheus.CounterVec
	RecoveryTotal     *prometheus.CounterVec
	DetectorRequests  *prometheus.CounterVec
	DetectorDuration  prometheus.Histogram
	EffectiveSetSize  prometheus.Histogram
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ReconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heatwatch_reconcile_total",
			Help: "Number of effective detection set builds, by cache outcome.",
		}, []string{"cache"}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heatwatch_reconcile_duration_seconds",
			Help:    "Time spent materializing effective detection sets.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		SaveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heatwatch_annotation_saves_total",
			Help: "Number of annotation save operations, by result.",
		}, []string{"result"}),
		RecoveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heatwatch_annotation_recoveries_total",
			Help: "Number of deleted-detection recoveries, by destination.",
		}, []string{"destination"}),
		DetectorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heatwatch_detector_requests_total",
			Help: "Number of detector inference requests, by result.",
		}, []string{"result"}),
		DetectorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heatwatch_detector_duration_seconds",
			Help:    "Detector inference request latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		EffectiveSetSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heatwatch_effective_set_size",
			Help:    "Number of detections in materialized effective sets.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
	}

	collectors := []prometheus.Collector{
		m.ReconcileTotal,
		m.ReconcileDuration,
		m.SaveTotal,
		m.RecoveryTotal,
		m.DetectorRequests,
		m.DetectorDuration,
		m.EffectiveSetSize,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
