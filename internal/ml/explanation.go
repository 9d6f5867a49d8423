package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// Attribution is the raw per-sample output of an Explainer.
type Attribution struct {
	Values    []float64
	BaseValue float64
}

// Explanation is a single-sample explanation. It deliberately carries no
// input data so the force plot labels contributions, not raw values.
type Explanation struct {
	Values       []float64 `json:"values"`
	BaseValue    float64   `json:"base_value"`
	FeatureNames []string  `json:"feature_names"`
}

// Contribution is one named entry of an Explanation.
type Contribution struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// NewExplainer returns the attribution method of the model.
func NewExplainer(m Model) (Explainer, error) {
	e, ok := m.(Explainer)
	if !ok {
		return nil, fmt.Errorf("%w: %T has no additive attribution", ErrUnsupported, m)
	}
	return e, nil
}

// explanationFor wraps a raw attribution with the schema's feature names.
func explanationFor(a Attribution, names []string) (*Explanation, error) {
	if len(a.Values) != len(names) {
		return nil, fmt.Errorf("attribution has %d values for %d features", len(a.Values), len(names))
	}
	values := make([]float64, len(a.Values))
	copy(values, a.Values)
	labels := make([]string, len(names))
	copy(labels, names)
	return &Explanation{Values: values, BaseValue: a.BaseValue, FeatureNames: labels}, nil
}

// OutputValue is BaseValue plus all contributions.
func (e *Explanation) OutputValue() float64 {
	return e.BaseValue + sum(e.Values)
}

// Additive reports whether the explanation reconstructs prediction within a
// relative tolerance.
func (e *Explanation) Additive(prediction, tol float64) bool {
	diff := math.Abs(e.OutputValue() - prediction)
	scale := math.Max(1, math.Abs(prediction))
	return diff <= tol*scale
}

// Sorted returns the contributions ordered by absolute magnitude, largest
// first.
func (e *Explanation) Sorted() []Contribution {
	out := make([]Contribution, len(e.Values))
	for i, v := range e.Values {
		out[i] = Contribution{Name: e.FeatureNames[i], Value: v}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	return out
}

// Save writes the explanation as indented JSON.
func (e *Explanation) Save(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
