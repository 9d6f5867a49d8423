// Package schema describes the ordered feature layout of each prediction
// variant. A schema ships next to the model and scaler it was fitted with and
// is the single source of truth for feature order, form labels, defaults and
// enumerated selections.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// CurrentVersion is the newest schema layout this build understands.
const CurrentVersion = 1

var (
	ErrMissingField  = errors.New("missing field")
	ErrInvalidValue  = errors.New("invalid value")
	ErrUnknownOption = errors.New("unknown option")
	ErrOrderMismatch = errors.New("feature order mismatch")
)

type Kind string

const (
	KindNumeric Kind = "numeric"
	KindEnum    Kind = "enum"
)

// Option is one selectable label of an enumerated feature and the numeric
// code the model was trained with.
type Option struct {
	Label string  `yaml:"label" json:"label"`
	Value float64 `yaml:"value" json:"value"`
}

type Feature struct {
	Name    string   `yaml:"name" json:"name"`
	Label   string   `yaml:"label" json:"label"`
	Kind    Kind     `yaml:"kind" json:"kind"`
	Default float64  `yaml:"default" json:"default"`
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Step    float64  `yaml:"step,omitempty" json:"step,omitempty"`
	Options []Option `yaml:"options,omitempty" json:"options,omitempty"`
}

// Target describes the predicted quantity and how it is displayed.
type Target struct {
	Name      string `yaml:"name" json:"name"`
	Unit      string `yaml:"unit" json:"unit"`
	Precision int    `yaml:"precision" json:"precision"`
}

type Schema struct {
	Version  int       `yaml:"version" json:"version"`
	Variant  string    `yaml:"variant" json:"variant"`
	Title    string    `yaml:"title" json:"title"`
	Target   Target    `yaml:"target" json:"target"`
	Features []Feature `yaml:"features" json:"features"`
}

// Builtin returns the schema compiled into the binary for a variant.
func Builtin(variant string) (*Schema, error) {
	data, err := builtinFS.ReadFile("builtin/" + variant + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no built-in schema for variant %q", variant)
	}
	return Parse(data)
}

// ParseFor parses a schema and checks that it describes variant.
func ParseFor(data []byte, variant string) (*Schema, error) {
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if s.Variant != variant {
		return nil, fmt.Errorf("describes variant %q, expected %q", s.Variant, variant)
	}
	return s, nil
}

func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the schema for internal consistency.
func (s *Schema) Validate() error {
	if s.Version < 1 || s.Version > CurrentVersion {
		return fmt.Errorf("unsupported schema version %d (supported: 1..%d)", s.Version, CurrentVersion)
	}
	if s.Variant == "" {
		return fmt.Errorf("schema variant cannot be empty")
	}
	if len(s.Features) == 0 {
		return fmt.Errorf("schema %s declares no features", s.Variant)
	}
	if s.Target.Precision < 0 || s.Target.Precision > 12 {
		return fmt.Errorf("target precision must be between 0 and 12, got %d", s.Target.Precision)
	}

	seen := make(map[string]bool, len(s.Features))
	for i, f := range s.Features {
		if f.Name == "" {
			return fmt.Errorf("feature %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate feature %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case KindNumeric:
			if len(f.Options) > 0 {
				return fmt.Errorf("numeric feature %q cannot declare options", f.Name)
			}
		case KindEnum:
			if len(f.Options) == 0 {
				return fmt.Errorf("enum feature %q declares no options", f.Name)
			}
			labels := make(map[string]bool, len(f.Options))
			values := make(map[float64]bool, len(f.Options))
			for _, o := range f.Options {
				if o.Label == "" || labels[o.Label] || values[o.Value] {
					return fmt.Errorf("enum feature %q has empty or duplicate option %q=%v", f.Name, o.Label, o.Value)
				}
				labels[o.Label] = true
				values[o.Value] = true
			}
			if !values[f.Default] {
				return fmt.Errorf("enum feature %q default %v is not an option value", f.Name, f.Default)
			}
		default:
			return fmt.Errorf("feature %q has unknown kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

func (s *Schema) Len() int {
	return len(s.Features)
}

// Names returns the feature names in fit order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	return names
}

// Check compares a feature order declared by an artifact against the
// schema. An empty list means the artifact carries no names and only the
// arity is compared by the caller.
func (s *Schema) Check(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if len(names) != len(s.Features) {
		return fmt.Errorf("%w: artifact declares %d features, schema %s has %d",
			ErrOrderMismatch, len(names), s.Variant, len(s.Features))
	}
	for i, f := range s.Features {
		if names[i] != f.Name {
			return fmt.Errorf("%w: position %d is %q in artifact, %q in schema",
				ErrOrderMismatch, i, names[i], f.Name)
		}
	}
	return nil
}

// EnumValue maps a selection label to the code the model expects.
func (f *Feature) EnumValue(label string) (float64, error) {
	for _, o := range f.Options {
		if o.Label == label {
			return o.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: %q for %s", ErrUnknownOption, label, f.Name)
}

// DefaultLabel returns the option label matching the default code.
func (f *Feature) DefaultLabel() string {
	for _, o := range f.Options {
		if o.Value == f.Default {
			return o.Label
		}
	}
	return ""
}

// Vector assembles the ordered feature vector from raw form values keyed by
// feature name. Enumerated features accept option labels only.
func (s *Schema) Vector(values map[string]string) ([]float64, error) {
	vec := make([]float64, len(s.Features))
	for i := range s.Features {
		f := &s.Features[i]
		raw, ok := values[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.Name)
		}
		raw = strings.TrimSpace(raw)

		switch f.Kind {
		case KindEnum:
			v, err := f.EnumValue(raw)
			if err != nil {
				return nil, err
			}
			vec[i] = v
		default:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, f.Name, raw)
			}
			if err := f.checkNumeric(v); err != nil {
				return nil, err
			}
			vec[i] = v
		}
	}
	return vec, nil
}

// Validated checks an already numeric vector, for callers that bypass the
// form: arity, finiteness, minimums and enum codes.
func (s *Schema) Validated(vec []float64) error {
	if len(vec) != len(s.Features) {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidValue, len(s.Features), len(vec))
	}
	for i := range s.Features {
		f := &s.Features[i]
		if f.Kind == KindEnum {
			found := false
			for _, o := range f.Options {
				if o.Value == vec[i] {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: code %v for %s", ErrUnknownOption, vec[i], f.Name)
			}
			continue
		}
		if err := f.checkNumeric(vec[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feature) checkNumeric(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is not finite", ErrInvalidValue, f.Name)
	}
	if f.Min != nil && v < *f.Min {
		return fmt.Errorf("%w: %s=%v is below minimum %v", ErrInvalidValue, f.Name, v, *f.Min)
	}
	return nil
}

// Defaults returns the form prefill values keyed by feature name.
func (s *Schema) Defaults() map[string]string {
	out := make(map[string]string, len(s.Features))
	for i := range s.Features {
		f := &s.Features[i]
		if f.Kind == KindEnum {
			out[f.Name] = f.DefaultLabel()
			continue
		}
		out[f.Name] = strconv.FormatFloat(f.Default, 'f', -1, 64)
	}
	return out
}

// Format renders a prediction with the target precision, without the unit.
func (s *Schema) Format(v float64) string {
	return strconv.FormatFloat(v, 'f', s.Target.Precision, 64)
}
