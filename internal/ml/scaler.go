package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

// scalerFile mirrors the fitted attributes of sklearn's StandardScaler and
// MinMaxScaler as exported to JSON.
type scalerFile struct {
	Kind           string    `json:"kind"`
	Mean           []float64 `json:"mean"`
	Scale          []float64 `json:"scale"`
	Min            []float64 `json:"min"`
	FeatureNamesIn []string  `json:"feature_names_in"`
}

// StandardScaler computes (x - mean) / scale per feature.
type StandardScaler struct {
	mean  []float64
	scale []float64
	names []string
}

// MinMaxScaler computes x*scale + min per feature.
type MinMaxScaler struct {
	min   []float64
	scale []float64
	names []string
}

// ParseScaler decodes a scaler export. The kind defaults to standard.
func ParseScaler(data []byte) (Scaler, error) {
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scaler: %w", err)
	}
	if len(f.Scale) == 0 {
		return nil, fmt.Errorf("scaler has no fitted scale")
	}
	if len(f.FeatureNamesIn) > 0 && len(f.FeatureNamesIn) != len(f.Scale) {
		return nil, fmt.Errorf("scaler names %d features but is fitted on %d", len(f.FeatureNamesIn), len(f.Scale))
	}
	for i, s := range f.Scale {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("scaler scale %d is not finite", i)
		}
	}

	switch f.Kind {
	case "", "standard":
		if len(f.Mean) != len(f.Scale) {
			return nil, fmt.Errorf("standard scaler mean has %d entries, scale has %d", len(f.Mean), len(f.Scale))
		}
		return &StandardScaler{mean: f.Mean, scale: f.Scale, names: f.FeatureNamesIn}, nil
	case "minmax":
		if len(f.Min) != len(f.Scale) {
			return nil, fmt.Errorf("minmax scaler min has %d entries, scale has %d", len(f.Min), len(f.Scale))
		}
		return &MinMaxScaler{min: f.Min, scale: f.Scale, names: f.FeatureNamesIn}, nil
	default:
		return nil, fmt.Errorf("unknown scaler kind %q", f.Kind)
	}
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if err := checkArity(x, len(s.scale)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.scale[i]
		if scale == 0 {
			// sklearn stores 1 for constant features; older exports stored 0
			scale = 1
		}
		out[i] = (v - s.mean[i]) / scale
	}
	return out, nil
}

func (s *StandardScaler) Dim() int               { return len(s.scale) }
func (s *StandardScaler) FeatureNames() []string { return s.names }

func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if err := checkArity(x, len(s.scale)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.scale[i] + s.min[i]
	}
	return out, nil
}

func (s *MinMaxScaler) Dim() int               { return len(s.scale) }
func (s *MinMaxScaler) FeatureNames() []string { return s.names }

func checkArity(x []float64, want int) error {
	if len(x) != want {
		return fmt.Errorf("%w: expected %d features, got %d", ErrArity, want, len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d is not finite", i)
		}
	}
	return nil
}
