package metrics

// Wrapper adapts Metrics to the pipeline's metrics interface so the ml
// package does not import Prometheus.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc(variant string) {
	w.m.Predictions.WithLabelValues(variant).Inc()
}

func (w *Wrapper) FailuresInc(variant, kind string) {
	w.m.Failures.WithLabelValues(variant, kind).Inc()
}

func (w *Wrapper) LatencyObserve(variant string, seconds float64) {
	w.m.Latency.WithLabelValues(variant).Observe(seconds)
}

func (w *Wrapper) ModelAgeSet(variant string, seconds float64) {
	w.m.ModelAge.WithLabelValues(variant).Set(seconds)
}

func (w *Wrapper) ArtifactsLoadedSet(variant string, loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	w.m.ArtifactsLoaded.WithLabelValues(variant).Set(v)
}

// RequestInc counts one HTTP response.
func (w *Wrapper) RequestInc(route, code string) {
	w.m.RequestsTotal.WithLabelValues(route, code).Inc()
}
