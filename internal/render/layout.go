package render

import (
	"math"
	"sort"

	"pervious-predictor/internal/ml"
)

// segment is one feature's span on the output axis.
type segment struct {
	Name    string
	Value   float64
	Start   float64
	End     float64
	Labeled bool
}

// forceLayout places the contributions around the prediction the way a
// SHAP force plot does: features pushing the output up end at f(x) and are
// stacked to its left, features pushing it down start at f(x) and are
// stacked to its right. Larger contributions sit closer to f(x).
type forceLayout struct {
	base       float64
	prediction float64
	up         []segment
	down       []segment
}

func newForceLayout(exp *ml.Explanation, prediction, threshold float64) forceLayout {
	l := forceLayout{base: exp.BaseValue, prediction: prediction}

	total := 0.0
	for _, v := range exp.Values {
		total += math.Abs(v)
	}

	for _, c := range exp.Sorted() {
		if c.Value == 0 {
			continue
		}
		s := segment{
			Name:    c.Name,
			Value:   c.Value,
			Labeled: math.Abs(c.Value) >= threshold*total,
		}
		if c.Value > 0 {
			l.up = append(l.up, s)
		} else {
			l.down = append(l.down, s)
		}
	}

	edge := prediction
	for i := range l.up {
		l.up[i].End = edge
		l.up[i].Start = edge - l.up[i].Value
		edge = l.up[i].Start
	}
	edge = prediction
	for i := range l.down {
		l.down[i].Start = edge
		l.down[i].End = edge - l.down[i].Value
		edge = l.down[i].End
	}
	return l
}

// bounds is the span covered by the segments and the base value.
func (l forceLayout) bounds() (lo, hi float64) {
	lo, hi = math.Min(l.base, l.prediction), math.Max(l.base, l.prediction)
	for _, s := range l.up {
		lo = math.Min(lo, s.Start)
	}
	for _, s := range l.down {
		hi = math.Max(hi, s.End)
	}
	if hi-lo < 1e-12 {
		pad := math.Max(math.Abs(hi)*0.05, 1e-3)
		return lo - pad, hi + pad
	}
	return lo, hi
}

// labeled returns the names shown on the plot, in drawing order.
func (l forceLayout) labeled() []string {
	var names []string
	for _, s := range append(append([]segment(nil), l.up...), l.down...) {
		if s.Labeled {
			names = append(names, s.Name)
		}
	}
	sort.Strings(names)
	return names
}
