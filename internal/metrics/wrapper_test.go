package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestWrapper_Predictions(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	if v := testutil.ToFloat64(metrics.Predictions.WithLabelValues("strength")); v != 0 {
		t.Errorf("Expected initial counter value 0, got %f", v)
	}

	wrapper.PredictionsInc("strength")
	wrapper.PredictionsInc("strength")
	wrapper.PredictionsInc("permeability")

	if v := testutil.ToFloat64(metrics.Predictions.WithLabelValues("strength")); v != 2 {
		t.Errorf("Expected strength predictions 2, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Predictions.WithLabelValues("permeability")); v != 1 {
		t.Errorf("Expected permeability predictions 1, got %f", v)
	}
}

func TestWrapper_Failures(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.FailuresInc("strength", "transform")
	wrapper.FailuresInc("strength", "render")
	wrapper.FailuresInc("strength", "transform")

	if v := testutil.ToFloat64(metrics.Failures.WithLabelValues("strength", "transform")); v != 2 {
		t.Errorf("Expected 2 transform failures, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Failures.WithLabelValues("strength", "render")); v != 1 {
		t.Errorf("Expected 1 render failure, got %f", v)
	}
}

func TestWrapper_Gauges(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.ModelAgeSet("permeability", 3600)
	if v := testutil.ToFloat64(metrics.ModelAge.WithLabelValues("permeability")); v != 3600 {
		t.Errorf("Expected model age 3600, got %f", v)
	}

	wrapper.ArtifactsLoadedSet("strength", true)
	if v := testutil.ToFloat64(metrics.ArtifactsLoaded.WithLabelValues("strength")); v != 1 {
		t.Errorf("Expected loaded gauge 1, got %f", v)
	}
	wrapper.ArtifactsLoadedSet("strength", false)
	if v := testutil.ToFloat64(metrics.ArtifactsLoaded.WithLabelValues("strength")); v != 0 {
		t.Errorf("Expected loaded gauge 0, got %f", v)
	}
}

func TestWrapper_Latency(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.LatencyObserve("strength", 0.02)
	wrapper.LatencyObserve("strength", 0.5)

	if n := testutil.CollectAndCount(metrics.Latency); n != 1 {
		t.Errorf("Expected 1 latency series, got %d", n)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "prediction_latency_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 2 {
			t.Errorf("Expected 2 observations, got %d", h.GetSampleCount())
		}
		return
	}
	t.Error("prediction_latency_seconds not gathered")
}

func TestWrapper_Requests(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.RequestInc("predict", "200")
	wrapper.RequestInc("predict", "422")

	if v := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("predict", "422")); v != 1 {
		t.Errorf("Expected 1 request with 422, got %f", v)
	}
}

func TestNewWithRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	NewWithRegistry(registry)
}
