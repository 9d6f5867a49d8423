package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScaler(t *testing.T) {
	s, err := ParseScaler([]byte(`{"kind": "standard", "mean": [1, 2], "scale": [2, 0], "feature_names_in": ["a", "b"]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Dim())
	assert.Equal(t, []string{"a", "b"}, s.FeatureNames())

	out, err := s.Transform([]float64{5, 7})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, out)
}

func TestMinMaxScaler(t *testing.T) {
	s, err := ParseScaler([]byte(`{"kind": "minmax", "min": [-0.5, 0], "scale": [0.5, 0.1]}`))
	require.NoError(t, err)
	assert.Nil(t, s.FeatureNames())

	out, err := s.Transform([]float64{2, 10})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1.0}, out, 1e-12)
}

func TestScaler_ArityIsAnError(t *testing.T) {
	s, err := ParseScaler([]byte(`{"mean": [0, 0, 0], "scale": [1, 1, 1]}`))
	require.NoError(t, err)

	for _, x := range [][]float64{{1, 2}, {1, 2, 3, 4}, nil} {
		out, err := s.Transform(x)
		assert.ErrorIs(t, err, ErrArity)
		assert.Nil(t, out)
	}
}

func TestParseScaler_Rejects(t *testing.T) {
	tests := []string{
		`{"kind": "robust", "scale": [1]}`,
		`{"kind": "standard", "mean": [1, 2], "scale": [1]}`,
		`{"kind": "minmax", "scale": [1]}`,
		`{"scale": []}`,
		`{"mean": [0], "scale": [1], "feature_names_in": ["a", "b"]}`,
		`[]`,
	}
	for _, doc := range tests {
		_, err := ParseScaler([]byte(doc))
		assert.Error(t, err, doc)
	}
}
