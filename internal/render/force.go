// Package render draws SHAP force plots for single predictions with
// gonum/plot. Every render owns its output buffer for the duration of the
// call and hands it back to the pool on every exit path.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"pervious-predictor/internal/ml"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgsvg"
)

var (
	colorUp   = color.RGBA{R: 255, G: 0, B: 81, A: 255}
	colorDown = color.RGBA{R: 0, G: 139, B: 251, A: 255}
	colorAxis = color.Gray{Y: 90}
)

// maxPooledBuffer caps the capacity of buffers returned to the pool.
const maxPooledBuffer = 4 << 20

// Config controls the force plot output.
type Config struct {
	Format    string  // png or svg
	Width     float64 // centimetres
	Height    float64 // centimetres
	Threshold float64 // fraction of total |contribution| below which labels are hidden
}

// ForcePlot implements ml.Renderer.
type ForcePlot struct {
	cfg   Config
	pool  sync.Pool
	inUse atomic.Int64
}

func New(cfg Config) (*ForcePlot, error) {
	switch cfg.Format {
	case "png", "svg":
	default:
		return nil, fmt.Errorf("unsupported plot format %q (png, svg)", cfg.Format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("plot size must be positive, got %vx%v cm", cfg.Width, cfg.Height)
	}
	if cfg.Threshold < 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("contribution threshold must be in [0, 1), got %v", cfg.Threshold)
	}
	f := &ForcePlot{cfg: cfg}
	f.pool.New = func() interface{} { return new(bytes.Buffer) }
	return f, nil
}

// ContentType is the MIME type of rendered plots.
func (f *ForcePlot) ContentType() string {
	if f.cfg.Format == "svg" {
		return "image/svg+xml"
	}
	return "image/png"
}

// InUse reports buffers currently held by in-flight renders.
func (f *ForcePlot) InUse() int64 {
	return f.inUse.Load()
}

func (f *ForcePlot) acquire() *bytes.Buffer {
	f.inUse.Add(1)
	buf := f.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (f *ForcePlot) release(buf *bytes.Buffer) {
	f.inUse.Add(-1)
	if buf.Cap() > maxPooledBuffer {
		return
	}
	f.pool.Put(buf)
}

// Render draws exp as a force plot ending at prediction.
func (f *ForcePlot) Render(exp *ml.Explanation, prediction float64) (out *ml.Plot, err error) {
	buf := f.acquire()
	defer f.release(buf)
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("plot panic: %v", r)
		}
	}()

	if len(exp.Values) != len(exp.FeatureNames) {
		return nil, fmt.Errorf("explanation has %d values for %d names", len(exp.Values), len(exp.FeatureNames))
	}
	if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
		return nil, fmt.Errorf("prediction %v cannot be plotted", prediction)
	}

	p := plot.New()
	p.Title.Text = "f(x) = " + strconv.FormatFloat(prediction, 'f', 2, 64)
	p.X.Label.Text = "model output"
	p.HideY()
	p.Add(&forcePlotter{layout: newForceLayout(exp, prediction, f.cfg.Threshold)})

	w, err := p.WriterTo(vg.Length(f.cfg.Width)*vg.Centimeter, vg.Length(f.cfg.Height)*vg.Centimeter, f.cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("create %s writer: %w", f.cfg.Format, err)
	}
	if _, err := w.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("write %s: %w", f.cfg.Format, err)
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return &ml.Plot{Data: data, ContentType: f.ContentType()}, nil
}

// forcePlotter draws the layout as chevrons on a single row.
type forcePlotter struct {
	layout forceLayout
}

const (
	rowCenter = 0.55
	rowHalf   = 0.12
)

func (fp *forcePlotter) DataRange() (xmin, xmax, ymin, ymax float64) {
	lo, hi := fp.layout.bounds()
	pad := (hi - lo) * 0.08
	return lo - pad, hi + pad, 0, 1
}

func (fp *forcePlotter) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	top, mid, bottom := trY(rowCenter+rowHalf), trY(rowCenter), trY(rowCenter-rowHalf)

	for _, s := range fp.layout.up {
		fp.chevron(&c, trX(s.Start), trX(s.End), top, mid, bottom, colorUp)
	}
	for _, s := range fp.layout.down {
		fp.chevron(&c, trX(s.Start), trX(s.End), top, mid, bottom, colorDown)
	}

	label := plt.X.Tick.Label
	label.XAlign = text.XCenter
	label.YAlign = text.YTop
	below := trY(rowCenter - rowHalf - 0.05)
	for _, s := range fp.layout.up {
		if s.Labeled {
			label.Color = colorUp
			c.FillText(label, vg.Point{X: trX((s.Start + s.End) / 2), Y: below}, s.Name)
		}
	}
	for _, s := range fp.layout.down {
		if s.Labeled {
			label.Color = colorDown
			c.FillText(label, vg.Point{X: trX((s.Start + s.End) / 2), Y: below}, s.Name)
		}
	}

	marker := draw.LineStyle{Color: colorAxis, Width: vg.Points(0.75), Dashes: []vg.Length{vg.Points(3), vg.Points(2)}}
	baseX := trX(fp.layout.base)
	c.StrokeLine2(marker, baseX, trY(0.1), baseX, trY(0.95))

	caption := plt.X.Tick.Label
	caption.XAlign = text.XCenter
	caption.YAlign = text.YBottom
	caption.Color = colorAxis
	c.FillText(caption, vg.Point{X: baseX, Y: trY(0.95)}, "base value")

	predX := trX(fp.layout.prediction)
	marker.Dashes = nil
	marker.Color = color.Black
	c.StrokeLine2(marker, predX, bottom, predX, trY(rowCenter+rowHalf+0.08))
	caption.Color = color.Black
	c.FillText(caption, vg.Point{X: predX, Y: trY(rowCenter + rowHalf + 0.1)}, "f(x)")
}

// chevron fills an arrow-shaped segment from x0 to x1. The tip points
// towards x1.
func (fp *forcePlotter) chevron(c *draw.Canvas, x0, x1, top, mid, bottom vg.Length, clr color.Color) {
	dir := vg.Length(1)
	if x1 < x0 {
		dir = -1
	}
	width := (x1 - x0) * dir
	tip := vg.Points(5)
	if tip > width/2 {
		tip = width / 2
	}
	pts := []vg.Point{
		{X: x0, Y: top},
		{X: x1 - dir*tip, Y: top},
		{X: x1, Y: mid},
		{X: x1 - dir*tip, Y: bottom},
		{X: x0, Y: bottom},
		{X: x0 + dir*tip, Y: mid},
	}
	c.FillPolygon(clr, pts)
}
