package ml

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	calls int
	err   error
	panic bool
}

func (r *stubRenderer) Render(exp *Explanation, prediction float64) (*Plot, error) {
	r.calls++
	if r.panic {
		panic("canvas exploded")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Plot{Data: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png"}, nil
}

func newTestPipeline(t *testing.T, variant string, r Renderer, m MetricsInterface) *Pipeline {
	t.Helper()
	paths, err := WriteFixtureArtifacts(t.TempDir(), variant)
	require.NoError(t, err)
	a, err := LoadArtifacts(variant, paths)
	require.NoError(t, err)
	return NewPipeline(a, r, m)
}

func TestPipeline_StrengthScenario(t *testing.T) {
	r := &stubRenderer{}
	p := newTestPipeline(t, "strength", r, nil)

	res, err := p.Run(context.Background(), []float64{0.30, 3.0, 4.75, 0.5, 15.0, 1, 100.0, 200.0})
	require.NoError(t, err)

	assert.False(t, math.IsNaN(res.Value) || math.IsInf(res.Value, 0))
	assert.Equal(t, "MPa", res.Unit)
	assert.Equal(t, p.Artifacts().Schema.Format(res.Value), res.Formatted)
	require.Len(t, res.Explanation.Values, 8)
	assert.Equal(t, []string{"W/C", "A/C", "Dmin", "ASR", "Porosity", "Shape", "Diameter", "Height"}, res.Explanation.FeatureNames)
	assert.InDelta(t, res.Value, res.Explanation.OutputValue(), 1e-9)
	assert.Equal(t, 1, r.calls)
	require.NotNil(t, res.Plot)
	assert.Equal(t, "image/png", res.Plot.ContentType)
}

func TestPipeline_PermeabilityScenario(t *testing.T) {
	p := newTestPipeline(t, "permeability", &stubRenderer{}, nil)

	res, err := p.Run(context.Background(), []float64{0.30, 3.0, 4.75, 9.50, 15.0, 2, 100.0, 200.0, 2})
	require.NoError(t, err)

	assert.False(t, math.IsNaN(res.Value) || math.IsInf(res.Value, 0))
	assert.Equal(t, "mm/s", res.Unit)
	require.Len(t, res.Explanation.Values, 9)
	assert.InDelta(t, res.Value, res.Explanation.OutputValue(), 1e-9)
	parts := strings.Split(res.Formatted, ".")
	require.Len(t, parts, 2)
	assert.Len(t, parts[1], 6)
}

func TestPipeline_Deterministic(t *testing.T) {
	p := newTestPipeline(t, "strength", nil, nil)
	x := []float64{0.28, 3.4, 4.75, 0.45, 18.0, 2, 150.0, 150.0}

	first, err := p.Run(context.Background(), x)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.Run(context.Background(), x)
		require.NoError(t, err)
		assert.Equal(t, first.Value, again.Value)
		assert.Equal(t, first.Explanation.Values, again.Explanation.Values)
		assert.Equal(t, first.Explanation.BaseValue, again.Explanation.BaseValue)
	}
}

func TestPipeline_WrongArityIsTransformError(t *testing.T) {
	m := NewMockMetrics()
	r := &stubRenderer{}
	p := newTestPipeline(t, "strength", r, m)

	for _, x := range [][]float64{
		{0.30, 3.0, 4.75, 0.5, 15.0, 1, 100.0},
		{0.30, 3.0, 4.75, 0.5, 15.0, 1, 100.0, 200.0, 1},
	} {
		res, err := p.Run(context.Background(), x)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrArity)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindTransform, kind)
	}
	assert.Equal(t, 0, r.calls)
	assert.Equal(t, 2, m.Failures("strength", "transform"))
	assert.Equal(t, 0, m.Predictions("strength"))
}

func TestPipeline_RejectsUnknownEnumCode(t *testing.T) {
	p := newTestPipeline(t, "strength", nil, nil)

	_, err := p.Run(context.Background(), []float64{0.30, 3.0, 4.75, 0.5, 15.0, 3, 100.0, 200.0})
	kind, _ := KindOf(err)
	assert.Equal(t, KindTransform, kind)
}

func TestPipeline_RenderFailures(t *testing.T) {
	x := []float64{0.30, 3.0, 4.75, 0.5, 15.0, 1, 100.0, 200.0}

	t.Run("error", func(t *testing.T) {
		p := newTestPipeline(t, "strength", &stubRenderer{err: errors.New("no font")}, nil)
		_, err := p.Run(context.Background(), x)
		kind, _ := KindOf(err)
		assert.Equal(t, KindRender, kind)
	})

	t.Run("panic", func(t *testing.T) {
		m := NewMockMetrics()
		p := newTestPipeline(t, "strength", &stubRenderer{panic: true}, m)
		res, err := p.Run(context.Background(), x)
		assert.Nil(t, res)
		kind, _ := KindOf(err)
		assert.Equal(t, KindRender, kind)
		assert.Contains(t, err.Error(), "canvas exploded")
		assert.Equal(t, 1, m.Failures("strength", "render"))

		// the process keeps serving
		p.renderer = nil
		_, err = p.Run(context.Background(), x)
		assert.NoError(t, err)
	})
}

func TestPipeline_CancelledContext(t *testing.T) {
	p := newTestPipeline(t, "strength", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, []float64{0.30, 3.0, 4.75, 0.5, 15.0, 1, 100.0, 200.0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Metrics(t *testing.T) {
	m := NewMockMetrics()
	p := newTestPipeline(t, "strength", nil, m)
	assert.True(t, m.loaded["strength"])

	_, err := p.Run(context.Background(), []float64{0.30, 3.0, 4.75, 0.5, 15.0, 1, 100.0, 200.0})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Predictions("strength"))
	assert.Greater(t, m.latencySum, 0.0)
}

func TestExplanation_Sorted(t *testing.T) {
	e := &Explanation{Values: []float64{0.5, -2, 1}, BaseValue: 3, FeatureNames: []string{"a", "b", "c"}}
	sorted := e.Sorted()
	assert.Equal(t, "b", sorted[0].Name)
	assert.Equal(t, "c", sorted[1].Name)
	assert.Equal(t, "a", sorted[2].Name)
	assert.InDelta(t, 2.5, e.OutputValue(), 1e-12)
	assert.True(t, e.Additive(2.5, 1e-9))
	assert.False(t, e.Additive(2.6, 1e-9))
}
