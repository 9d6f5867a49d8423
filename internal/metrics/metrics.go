// Package metrics provides Prometheus metrics collection for the predictor.
// It defines the prediction, failure and artifact metrics exposed on the
// /metrics endpoint, labelled by model variant.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the predictor.
type Metrics struct {
	// Pipeline metrics
	Predictions *prometheus.CounterVec   // Successful predictions per variant
	Failures    *prometheus.CounterVec   // Failed predictions per variant and error kind
	Latency     *prometheus.HistogramVec // End-to-end pipeline latency

	// Artifact metrics
	ModelAge        *prometheus.GaugeVec // Age of the loaded model file in seconds
	ArtifactsLoaded *prometheus.GaugeVec // 1 when the variant's artifacts loaded, 0 otherwise

	// HTTP metrics
	RequestsTotal *prometheus.CounterVec // HTTP requests by route and status code
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of successful predictions",
		}, []string{"variant"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed predictions by error kind",
		}, []string{"variant", "kind"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (scale, predict, explain, render)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"variant"}),
		ModelAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}, []string{"variant"}),
		ArtifactsLoaded: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "artifacts_loaded",
			Help: "Whether the variant's model and scaler loaded (1) or not (0)",
		}, []string{"variant"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}
