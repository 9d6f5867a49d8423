package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Plot is a rendered force plot image.
type Plot struct {
	Data        []byte
	ContentType string
}

// Renderer draws an explanation as a force plot.
type Renderer interface {
	Render(exp *Explanation, prediction float64) (*Plot, error)
}

// Result is the outcome of one pipeline run. Scaled is the scaler output as
// the model saw it; only the CLI's JSON output carries it, for debugging
// feature order. The web API response leaves it out.
type Result struct {
	Variant     string        `json:"variant"`
	Value       float64       `json:"value"`
	Formatted   string        `json:"formatted"`
	Unit        string        `json:"unit"`
	Scaled      []float64     `json:"scaled"`
	Explanation *Explanation  `json:"explanation"`
	Plot        *Plot         `json:"-"`
	Latency     time.Duration `json:"-"`
}

// Pipeline scales, predicts, explains and renders one feature vector.
type Pipeline struct {
	artifacts *Artifacts
	renderer  Renderer
	metrics   MetricsInterface
}

// NewPipeline binds a loaded artifact pair. A nil renderer skips step 4; a
// nil metrics sink disables metrics.
func NewPipeline(a *Artifacts, r Renderer, m MetricsInterface) *Pipeline {
	p := &Pipeline{artifacts: a, renderer: r, metrics: m}
	if m != nil {
		m.ArtifactsLoadedSet(a.Variant, true)
		m.ModelAgeSet(a.Variant, a.ModelAge().Seconds())
	}
	return p
}

func (p *Pipeline) Artifacts() *Artifacts {
	return p.artifacts
}

func (p *Pipeline) Variant() string {
	return p.artifacts.Variant
}

// Run executes the pipeline once. Every failure, including a panic inside a
// collaborator, comes back as a *PipelineError naming the failed stage.
func (p *Pipeline) Run(ctx context.Context, raw []float64) (res *Result, err error) {
	start := time.Now()
	variant := p.artifacts.Variant
	stage := KindTransform

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = newError(stage, variant, fmt.Errorf("panic: %v", r))
		}
		if p.metrics != nil {
			p.metrics.LatencyObserve(variant, time.Since(start).Seconds())
			if err != nil {
				kind, _ := KindOf(err)
				p.metrics.FailuresInc(variant, kind.String())
			} else {
				p.metrics.PredictionsInc(variant)
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, newError(stage, variant, ctx.Err())
	default:
	}

	// Step 1: scale
	scaled, err := p.artifacts.Scaler.Transform(raw)
	if err != nil {
		return nil, newError(stage, variant, err)
	}
	if err := p.artifacts.Schema.Validated(raw); err != nil {
		return nil, newError(stage, variant, err)
	}

	// Step 2: predict
	stage = KindInference
	value, err := p.artifacts.Model.Predict(scaled)
	if err != nil {
		return nil, newError(stage, variant, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, newError(stage, variant, fmt.Errorf("model returned %v", value))
	}

	// Step 3: explain
	stage = KindExplanation
	attr, err := p.artifacts.Explainer.Attribute(scaled)
	if err != nil {
		return nil, newError(stage, variant, err)
	}
	exp, err := explanationFor(attr, p.artifacts.Schema.Names())
	if err != nil {
		return nil, newError(stage, variant, err)
	}
	if !exp.Additive(value, 1e-6) {
		log.Warn().
			Str("variant", variant).
			Float64("prediction", value).
			Float64("explained", exp.OutputValue()).
			Msg("Attribution does not add up to the prediction")
	}

	res = &Result{
		Variant:     variant,
		Value:       value,
		Formatted:   p.artifacts.Schema.Format(value),
		Unit:        p.artifacts.Schema.Target.Unit,
		Scaled:      scaled,
		Explanation: exp,
	}

	// Step 4: render
	stage = KindRender
	if p.renderer != nil {
		plot, err := p.renderer.Render(exp, value)
		if err != nil {
			return nil, newError(stage, variant, err)
		}
		res.Plot = plot
	}

	res.Latency = time.Since(start)
	log.Debug().
		Str("variant", variant).
		Float64("prediction", value).
		Dur("latency", res.Latency).
		Msg("Prediction successful")

	return res, nil
}
