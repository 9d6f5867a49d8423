package ml

import (
	"encoding/json"
	"fmt"
)

type linearFile struct {
	Kind         string    `json:"kind"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	FeatureMeans []float64 `json:"feature_means"`
	FeatureNames []string  `json:"feature_names"`
}

// LinearModel is y = intercept + sum(w_i * x_i). Its SHAP values are exact:
// phi_i = w_i * (x_i - mean_i) against the training means of the scaled
// features (zero for standardized inputs).
type LinearModel struct {
	coef      []float64
	intercept float64
	means     []float64
	names     []string
}

func ParseLinear(data []byte) (*LinearModel, error) {
	var f linearFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse linear model: %w", err)
	}
	if len(f.Coefficients) == 0 {
		return nil, fmt.Errorf("linear model has no coefficients")
	}
	means := f.FeatureMeans
	if len(means) == 0 {
		means = make([]float64, len(f.Coefficients))
	}
	if len(means) != len(f.Coefficients) {
		return nil, fmt.Errorf("linear model has %d means for %d coefficients", len(means), len(f.Coefficients))
	}
	if len(f.FeatureNames) > 0 && len(f.FeatureNames) != len(f.Coefficients) {
		return nil, fmt.Errorf("linear model has %d names for %d coefficients", len(f.FeatureNames), len(f.Coefficients))
	}
	return &LinearModel{
		coef:      f.Coefficients,
		intercept: f.Intercept,
		means:     means,
		names:     f.FeatureNames,
	}, nil
}

func (m *LinearModel) NumFeatures() int       { return len(m.coef) }
func (m *LinearModel) FeatureNames() []string { return m.names }

func (m *LinearModel) Predict(x []float64) (float64, error) {
	if err := checkArity(x, len(m.coef)); err != nil {
		return 0, err
	}
	y := m.intercept
	for i, w := range m.coef {
		y += w * x[i]
	}
	return y, nil
}

func (m *LinearModel) Attribute(x []float64) (Attribution, error) {
	if err := checkArity(x, len(m.coef)); err != nil {
		return Attribution{}, err
	}
	base := m.intercept
	phi := make([]float64, len(m.coef))
	for i, w := range m.coef {
		base += w * m.means[i]
		phi[i] = w * (x[i] - m.means[i])
	}
	return Attribution{Values: phi, BaseValue: base}, nil
}
