package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearModel(t *testing.T) {
	m, err := ParseLinear([]byte(`{"kind": "linear", "coefficients": [2, -1, 0.5], "intercept": 10, "feature_means": [1, 0, 2], "feature_names": ["a", "b", "c"]}`))
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumFeatures())
	assert.Equal(t, []string{"a", "b", "c"}, m.FeatureNames())

	x := []float64{3, 4, 2}
	y, err := m.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 10+6-4+1, y, 1e-12)

	attr, err := m.Attribute(x)
	require.NoError(t, err)
	assert.InDelta(t, 10+2+0+1, attr.BaseValue, 1e-12)
	assert.InDeltaSlice(t, []float64{4, -4, 0}, attr.Values, 1e-12)
	assert.InDelta(t, y, attr.BaseValue+sum(attr.Values), 1e-12)
}

func TestLinearModel_Rejects(t *testing.T) {
	for _, doc := range []string{
		`{"kind": "linear", "coefficients": []}`,
		`{"kind": "linear", "coefficients": [1, 2], "feature_means": [0]}`,
		`{"kind": "linear", "coefficients": [1, 2], "feature_names": ["a"]}`,
	} {
		_, err := ParseLinear([]byte(doc))
		assert.Error(t, err, doc)
	}
}

type opaqueModel struct{}

func (opaqueModel) Predict([]float64) (float64, error) { return 0, nil }
func (opaqueModel) NumFeatures() int                   { return 1 }
func (opaqueModel) FeatureNames() []string             { return nil }

func TestNewExplainer(t *testing.T) {
	_, err := NewExplainer(opaqueModel{})
	assert.ErrorIs(t, err, ErrUnsupported)

	e, err := NewExplainer(fixtureEnsemble(t, 8))
	require.NoError(t, err)
	assert.NotNil(t, e)
}
