package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pervious-predictor/internal/schema"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	failures    map[string]int
	latencySum  float64
	modelAge    map[string]float64
	loaded      map[string]bool
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		predictions: make(map[string]int),
		failures:    make(map[string]int),
		modelAge:    make(map[string]float64),
		loaded:      make(map[string]bool),
	}
}

func (m *MockMetrics) PredictionsInc(variant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[variant]++
}

func (m *MockMetrics) FailuresInc(variant, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[variant+"/"+kind]++
}

func (m *MockMetrics) LatencyObserve(variant string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) ModelAgeSet(variant string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge[variant] = v
}

func (m *MockMetrics) ArtifactsLoadedSet(variant string, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded[variant] = loaded
}

func (m *MockMetrics) Predictions(variant string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions[variant]
}

func (m *MockMetrics) Failures(variant, kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[variant+"/"+kind]
}

// FixtureCatBoost builds a small CatBoost JSON export over n features. It
// contains a repeated split feature inside one tree and empty leaves so the
// TreeSHAP edge cases are exercised.
func FixtureCatBoost(n int, names []string, bias float64) []byte {
	type split struct {
		Border            float64 `json:"border"`
		FloatFeatureIndex int     `json:"float_feature_index"`
		SplitIndex        int     `json:"split_index"`
		SplitType         string  `json:"split_type"`
	}
	type obliviousTree struct {
		LeafValues  []float64 `json:"leaf_values"`
		LeafWeights []float64 `json:"leaf_weights"`
		Splits      []split   `json:"splits"`
	}
	type floatFeature struct {
		FeatureIndex     int       `json:"feature_index"`
		FlatFeatureIndex int       `json:"flat_feature_index"`
		FeatureID        string    `json:"feature_id,omitempty"`
		Borders          []float64 `json:"borders"`
		HasNans          bool      `json:"has_nans"`
	}

	f := func(i int) int { return i % n }
	trees := []obliviousTree{
		{
			LeafValues:  []float64{-2.5, 1.25, 0.75, 3.5},
			LeafWeights: []float64{40, 25, 20, 15},
			Splits: []split{
				{Border: 0.1, FloatFeatureIndex: f(0), SplitType: "FloatFeature"},
				{Border: -0.3, FloatFeatureIndex: f(4), SplitType: "FloatFeature"},
			},
		},
		{
			LeafValues:  []float64{0.5, -1.0, 2.0, -0.25, 1.5, 0.0, -3.0, 0.8},
			LeafWeights: []float64{10, 0, 12, 8, 30, 5, 0, 35},
			Splits: []split{
				{Border: 0.0, FloatFeatureIndex: f(1), SplitType: "FloatFeature"},
				{Border: 0.5, FloatFeatureIndex: f(2), SplitType: "FloatFeature"},
				{Border: -0.5, FloatFeatureIndex: f(1), SplitType: "FloatFeature"},
			},
		},
		{
			LeafValues:  []float64{1.1, -0.6, -1.4, 0.9},
			LeafWeights: []float64{22, 28, 26, 24},
			Splits: []split{
				{Border: 0.25, FloatFeatureIndex: f(n - 1), SplitType: "FloatFeature"},
				{Border: 0.0, FloatFeatureIndex: f(n - 3), SplitType: "FloatFeature"},
			},
		},
		{
			LeafValues:  []float64{-0.4, 0.45},
			LeafWeights: []float64{60, 40},
			Splits: []split{
				{Border: 0.2, FloatFeatureIndex: f(3), SplitType: "FloatFeature"},
			},
		},
	}

	features := make([]floatFeature, n)
	for i := range features {
		features[i] = floatFeature{FeatureIndex: i, FlatFeatureIndex: i, Borders: []float64{}}
		if len(names) == n {
			features[i].FeatureID = names[i]
		}
	}

	doc := map[string]interface{}{
		"model_info":      map[string]interface{}{"params": map[string]interface{}{"loss_function": map[string]string{"type": "RMSE"}}},
		"features_info":   map[string]interface{}{"float_features": features},
		"oblivious_trees": trees,
		"scale_and_bias":  []interface{}{1.0, []float64{bias}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

// FixtureScaler builds a standard scaler centred on the schema defaults.
func FixtureScaler(s *schema.Schema) []byte {
	mean := make([]float64, s.Len())
	scale := make([]float64, s.Len())
	for i, f := range s.Features {
		mean[i] = f.Default
		scale[i] = 0.25 * (f.Default + 1)
	}
	data, err := json.Marshal(map[string]interface{}{
		"kind":             "standard",
		"mean":             mean,
		"scale":            scale,
		"feature_names_in": s.Names(),
	})
	if err != nil {
		panic(err)
	}
	return data
}

// WriteFixtureArtifacts writes a model and scaler for the built-in schema
// of variant into dir and returns their paths.
func WriteFixtureArtifacts(dir, variant string) (ArtifactPaths, error) {
	s, err := schema.Builtin(variant)
	if err != nil {
		return ArtifactPaths{}, err
	}
	bias := 20.0
	if variant == "permeability" {
		bias = 5.0
	}
	paths := ArtifactPaths{
		Model:  filepath.Join(dir, variant+"_model.json"),
		Scaler: filepath.Join(dir, variant+"_scaler.json"),
	}
	if err := os.WriteFile(paths.Model, FixtureCatBoost(s.Len(), nil, bias), 0o600); err != nil {
		return ArtifactPaths{}, fmt.Errorf("write fixture model: %w", err)
	}
	if err := os.WriteFile(paths.Scaler, FixtureScaler(s), 0o600); err != nil {
		return ArtifactPaths{}, fmt.Errorf("write fixture scaler: %w", err)
	}
	return paths, nil
}
