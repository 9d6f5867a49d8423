// Package ml runs the prediction pipeline for pervious concrete mix designs.
// It loads a fitted regression model and its feature scaler once per
// process, scales an ordered feature vector, predicts a single value and
// decomposes that prediction into additive per-feature contributions.
//
// Models are read from Go-native exports of the training stack: CatBoost
// JSON (oblivious trees, explained with path-dependent TreeSHAP) and plain
// linear models (explained exactly).
package ml

// Model is a fitted single-output regression model.
type Model interface {
	// Predict returns the model output for one scaled feature vector.
	// The vector arity must equal NumFeatures.
	Predict(x []float64) (float64, error)

	// NumFeatures is the input dimensionality the model was fitted with.
	NumFeatures() int

	// FeatureNames returns the fit-time feature order when the artifact
	// carries it, or nil.
	FeatureNames() []string
}

// Explainer decomposes a single prediction into additive contributions.
type Explainer interface {
	// Attribute returns one signed contribution per feature and the base
	// value such that BaseValue + sum(Values) equals Predict(x).
	Attribute(x []float64) (Attribution, error)
}

// Scaler is a fitted feature transform applied before inference.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
	Dim() int
	FeatureNames() []string
}

// MetricsInterface defines metrics methods needed by the pipeline
type MetricsInterface interface {
	PredictionsInc(variant string)
	FailuresInc(variant, kind string)
	LatencyObserve(variant string, seconds float64)
	ModelAgeSet(variant string, seconds float64)
	ArtifactsLoadedSet(variant string, loaded bool)
}
