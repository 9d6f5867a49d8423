package ml

import (
	"errors"
	"fmt"
)

var (
	ErrArtifactMissing = errors.New("artifact file missing")
	ErrArity           = errors.New("feature arity mismatch")
	ErrUnsupported     = errors.New("unsupported model")
)

// ErrorKind classifies where in the pipeline a failure happened.
type ErrorKind int

const (
	KindConfiguration ErrorKind = iota + 1
	KindTransform
	KindInference
	KindExplanation
	KindRender
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransform:
		return "transform"
	case KindInference:
		return "inference"
	case KindExplanation:
		return "explanation"
	case KindRender:
		return "render"
	default:
		return "unknown"
	}
}

// PipelineError is the only error type that leaves the pipeline.
type PipelineError struct {
	Kind    ErrorKind
	Variant string
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Variant, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, variant string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Variant: variant, Err: err}
}

// KindOf reports the pipeline stage that produced err.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// UserMessage converts a pipeline failure to the text shown on the page.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return fmt.Sprintf("An error occurred during prediction or SHAP computation: %v", err)
	}
	switch pe.Kind {
	case KindConfiguration:
		return fmt.Sprintf("Model or scaler file is missing or invalid. Please check the file paths. (%v)", pe.Err)
	case KindTransform:
		return fmt.Sprintf("The input could not be scaled: %v", pe.Err)
	case KindRender:
		return fmt.Sprintf("The prediction succeeded but the SHAP force plot could not be drawn: %v", pe.Err)
	default:
		return fmt.Sprintf("An error occurred during prediction or SHAP computation: %v", pe.Err)
	}
}
