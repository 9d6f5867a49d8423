package ml

import (
	"encoding/json"
	"fmt"
)

// ParseModel picks the decoder by content.
func ParseModel(data []byte) (Model, error) {
	var probe struct {
		Kind           string          `json:"kind"`
		ObliviousTrees json.RawMessage `json:"oblivious_trees"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}

	switch {
	case len(probe.ObliviousTrees) > 0:
		return ParseCatBoost(data)
	case probe.Kind == "linear":
		return ParseLinear(data)
	default:
		return nil, fmt.Errorf("%w: unrecognised model format (kind %q)", ErrUnsupported, probe.Kind)
	}
}
