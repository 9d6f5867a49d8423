package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conditional is E[f(x) | x_S] under the cover weighting, computed directly.
func conditional(t *tree, i int, x []float64, in []bool) float64 {
	n := &t.nodes[i]
	if t.isLeaf(i) {
		return n.value
	}
	if in[n.feature] {
		if x[n.feature] > n.threshold {
			return conditional(t, n.right, x, in)
		}
		return conditional(t, n.left, x, in)
	}
	if n.cover == 0 {
		return 0
	}
	l, r := &t.nodes[n.left], &t.nodes[n.right]
	return l.cover/n.cover*conditional(t, n.left, x, in) + r.cover/n.cover*conditional(t, n.right, x, in)
}

// bruteForceShapley enumerates every coalition.
func bruteForceShapley(t *tree, x []float64) []float64 {
	n := len(x)
	phi := make([]float64, n)
	fact := func(k int) float64 {
		f := 1.0
		for i := 2; i <= k; i++ {
			f *= float64(i)
		}
		return f
	}
	for i := 0; i < n; i++ {
		for mask := 0; mask < 1<<n; mask++ {
			if mask&(1<<i) != 0 {
				continue
			}
			in := make([]bool, n)
			size := 0
			for j := 0; j < n; j++ {
				if mask&(1<<j) != 0 {
					in[j] = true
					size++
				}
			}
			without := conditional(t, 0, x, in)
			in[i] = true
			with := conditional(t, 0, x, in)
			w := fact(size) * fact(n-size-1) / fact(n)
			phi[i] += w * (with - without)
		}
	}
	return phi
}

func fixtureEnsemble(t *testing.T, n int) *TreeEnsemble {
	t.Helper()
	m, err := ParseCatBoost(FixtureCatBoost(n, nil, 20))
	require.NoError(t, err)
	return m
}

func TestTreeSHAP_MatchesBruteForce(t *testing.T) {
	m := fixtureEnsemble(t, 6)

	inputs := [][]float64{
		{0, 0, 0, 0, 0, 0},
		{0.5, -0.2, 0.9, 0.3, -1.0, 0.4},
		{-1.2, 0.7, -0.1, -0.6, 0.2, -0.9},
		{0.11, -0.51, 0.51, 0.21, -0.29, 0.26},
	}

	for _, x := range inputs {
		for ti := range m.trees {
			got := make([]float64, len(x))
			m.trees[ti].shap(x, got)
			want := bruteForceShapley(&m.trees[ti], x)
			for i := range want {
				assert.InDelta(t, want[i], got[i], 1e-9, "tree %d feature %d input %v", ti, i, x)
			}
		}
	}
}

func TestTreeSHAP_Additivity(t *testing.T) {
	for _, n := range []int{8, 9} {
		m := fixtureEnsemble(t, n)
		x := make([]float64, n)
		for i := range x {
			x[i] = math.Sin(float64(i+1)) * 0.8
		}

		pred, err := m.Predict(x)
		require.NoError(t, err)
		attr, err := m.Attribute(x)
		require.NoError(t, err)

		require.Len(t, attr.Values, n)
		assert.InDelta(t, pred, attr.BaseValue+sum(attr.Values), 1e-9)
	}
}

func TestTreeSHAP_UnusedFeatureGetsZero(t *testing.T) {
	m := fixtureEnsemble(t, 8)
	x := []float64{0.3, 0.1, 0.7, -0.4, 0.2, 1.0, -0.3, 0.5}

	attr, err := m.Attribute(x)
	require.NoError(t, err)
	// feature 6 is never split on by the fixture
	assert.Equal(t, 0.0, attr.Values[6])
}

func TestTree_ExpectedValue(t *testing.T) {
	tr := buildOblivious(
		[]obliviousSplit{{feature: 0, border: 0}},
		[]float64{2, 6},
		[]float64{3, 1},
	)
	assert.InDelta(t, 3.0, tr.expectedValue(), 1e-12)
	assert.Equal(t, 2.0, tr.predict([]float64{-1}))
	assert.Equal(t, 6.0, tr.predict([]float64{1}))
}
