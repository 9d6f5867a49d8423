package render

import (
	"bytes"
	"sync"
	"testing"

	"pervious-predictor/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleExplanation() *ml.Explanation {
	return &ml.Explanation{
		Values:       []float64{2, -1, 0.5, 0},
		BaseValue:    10,
		FeatureNames: []string{"Cement", "W/C ratio", "Porosity", "Dmax"},
	}
}

func newTestPlot(t *testing.T, format string) *ForcePlot {
	t.Helper()
	f, err := New(Config{Format: format, Width: 20, Height: 6})
	require.NoError(t, err)
	return f
}

func TestForceLayout(t *testing.T) {
	l := newForceLayout(sampleExplanation(), 11.5, 0.2)

	require.Len(t, l.up, 2)
	require.Len(t, l.down, 1)

	assert.Equal(t, "Cement", l.up[0].Name)
	assert.InDelta(t, 11.5, l.up[0].End, 1e-12)
	assert.InDelta(t, 9.5, l.up[0].Start, 1e-12)
	assert.InDelta(t, 9.5, l.up[1].End, 1e-12)
	assert.InDelta(t, 9.0, l.up[1].Start, 1e-12)

	assert.Equal(t, "W/C ratio", l.down[0].Name)
	assert.InDelta(t, 11.5, l.down[0].Start, 1e-12)
	assert.InDelta(t, 12.5, l.down[0].End, 1e-12)

	lo, hi := l.bounds()
	assert.InDelta(t, 9.0, lo, 1e-12)
	assert.InDelta(t, 12.5, hi, 1e-12)

	assert.Equal(t, []string{"Cement", "W/C ratio"}, l.labeled())
}

func TestForceLayoutZeroThresholdLabelsEverything(t *testing.T) {
	l := newForceLayout(sampleExplanation(), 11.5, 0)
	assert.Equal(t, []string{"Cement", "Porosity", "W/C ratio"}, l.labeled())
}

func TestForceLayoutDegenerate(t *testing.T) {
	exp := &ml.Explanation{Values: []float64{0, 0}, BaseValue: 3, FeatureNames: []string{"a", "b"}}
	l := newForceLayout(exp, 3, 0)

	assert.Empty(t, l.up)
	assert.Empty(t, l.down)
	lo, hi := l.bounds()
	assert.Less(t, lo, 3.0)
	assert.Greater(t, hi, 3.0)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Format: "gif", Width: 20, Height: 6})
	assert.Error(t, err)

	_, err = New(Config{Format: "png", Width: 0, Height: 6})
	assert.Error(t, err)

	_, err = New(Config{Format: "png", Width: 20, Height: 6, Threshold: 1})
	assert.Error(t, err)
}

func TestRenderPNG(t *testing.T) {
	f := newTestPlot(t, "png")

	plot, err := f.Render(sampleExplanation(), 11.5)
	require.NoError(t, err)
	require.NotNil(t, plot)

	assert.Equal(t, "image/png", plot.ContentType)
	assert.True(t, bytes.HasPrefix(plot.Data, []byte("\x89PNG")))
	assert.Equal(t, int64(0), f.InUse())
}

func TestRenderSVG(t *testing.T) {
	f := newTestPlot(t, "svg")

	plot, err := f.Render(sampleExplanation(), 11.5)
	require.NoError(t, err)

	assert.Equal(t, "image/svg+xml", plot.ContentType)
	assert.Contains(t, string(plot.Data), "<svg")
	assert.Equal(t, int64(0), f.InUse())
}

func TestRenderOutputOutlivesBuffer(t *testing.T) {
	f := newTestPlot(t, "png")

	first, err := f.Render(sampleExplanation(), 11.5)
	require.NoError(t, err)
	snapshot := append([]byte(nil), first.Data...)

	_, err = f.Render(sampleExplanation(), 42)
	require.NoError(t, err)

	assert.Equal(t, snapshot, first.Data)
}

func TestRenderReleasesOnError(t *testing.T) {
	f := newTestPlot(t, "png")

	exp := sampleExplanation()
	exp.FeatureNames = exp.FeatureNames[:2]
	_, err := f.Render(exp, 11.5)
	assert.Error(t, err)
	assert.Equal(t, int64(0), f.InUse())
}

func TestRenderReleasesOnPanic(t *testing.T) {
	f := newTestPlot(t, "png")

	var plot *ml.Plot
	var err error
	assert.NotPanics(t, func() {
		plot, err = f.Render(nil, 1)
	})
	assert.Nil(t, plot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, int64(0), f.InUse())
}

func TestRenderRejectsNonFinitePrediction(t *testing.T) {
	f := newTestPlot(t, "png")

	zero := 0.0
	_, err := f.Render(sampleExplanation(), 1/zero)
	assert.Error(t, err)
	assert.Equal(t, int64(0), f.InUse())
}

func TestRenderConcurrent(t *testing.T) {
	f := newTestPlot(t, "svg")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.Render(sampleExplanation(), 11.5+float64(i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(0), f.InUse())
}
