package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

// catboostFile is the subset of CatBoost's JSON model export
// (model.save_model(path, format="json")) needed for numeric features.
type catboostFile struct {
	FeaturesInfo struct {
		FloatFeatures []struct {
			FeatureIndex     int       `json:"feature_index"`
			FlatFeatureIndex int       `json:"flat_feature_index"`
			FeatureID        string    `json:"feature_id"`
			Borders          []float64 `json:"borders"`
		} `json:"float_features"`
		CategoricalFeatures []json.RawMessage `json:"categorical_features"`
	} `json:"features_info"`
	ObliviousTrees []struct {
		LeafValues  []float64 `json:"leaf_values"`
		LeafWeights []float64 `json:"leaf_weights"`
		Splits      []struct {
			Border            float64 `json:"border"`
			FloatFeatureIndex int     `json:"float_feature_index"`
			SplitType         string  `json:"split_type"`
		} `json:"splits"`
	} `json:"oblivious_trees"`
	ScaleAndBias json.RawMessage `json:"scale_and_bias"`
}

// TreeEnsemble is a CatBoost oblivious tree ensemble for regression.
type TreeEnsemble struct {
	trees       []tree
	numFeatures int
	names       []string
	scale       float64
	bias        float64
}

// ParseCatBoost decodes a CatBoost JSON export. Categorical and CTR splits
// are rejected; the predictor inputs are numeric by construction.
func ParseCatBoost(data []byte) (*TreeEnsemble, error) {
	var f catboostFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catboost model: %w", err)
	}
	if len(f.FeaturesInfo.CategoricalFeatures) > 0 {
		return nil, fmt.Errorf("%w: categorical features are not supported", ErrUnsupported)
	}
	if len(f.ObliviousTrees) == 0 {
		return nil, fmt.Errorf("catboost model has no trees")
	}

	scale, bias, err := parseScaleAndBias(f.ScaleAndBias)
	if err != nil {
		return nil, err
	}

	m := &TreeEnsemble{scale: scale, bias: bias}

	// Feature order is the flat index; names are only kept when every
	// feature carries one.
	numFloat := len(f.FeaturesInfo.FloatFeatures)
	if numFloat > 0 {
		names := make([]string, numFloat)
		named := true
		for _, ff := range f.FeaturesInfo.FloatFeatures {
			if ff.FlatFeatureIndex < 0 || ff.FlatFeatureIndex >= numFloat {
				return nil, fmt.Errorf("float feature index %d out of range", ff.FlatFeatureIndex)
			}
			names[ff.FlatFeatureIndex] = ff.FeatureID
			if ff.FeatureID == "" {
				named = false
			}
		}
		if named {
			m.names = names
		}
		m.numFeatures = numFloat
	}

	for ti, ot := range f.ObliviousTrees {
		depth := len(ot.Splits)
		if depth > 16 {
			return nil, fmt.Errorf("tree %d: depth %d exceeds 16", ti, depth)
		}
		leaves := 1 << depth
		if len(ot.LeafValues) != leaves {
			return nil, fmt.Errorf("%w: tree %d has %d leaf values for depth %d (multi-output models are not supported)",
				ErrUnsupported, ti, len(ot.LeafValues), depth)
		}

		splits := make([]obliviousSplit, depth)
		for d, s := range ot.Splits {
			if s.SplitType != "" && s.SplitType != "FloatFeature" {
				return nil, fmt.Errorf("%w: tree %d uses %s split", ErrUnsupported, ti, s.SplitType)
			}
			if s.FloatFeatureIndex < 0 {
				return nil, fmt.Errorf("tree %d: negative feature index", ti)
			}
			if s.FloatFeatureIndex >= m.numFeatures {
				if numFloat > 0 {
					return nil, fmt.Errorf("tree %d splits on feature %d, model declares %d", ti, s.FloatFeatureIndex, numFloat)
				}
				m.numFeatures = s.FloatFeatureIndex + 1
			}
			splits[d] = obliviousSplit{feature: s.FloatFeatureIndex, border: s.Border}
		}

		weights := ot.LeafWeights
		if len(weights) != leaves || sum(weights) <= 0 {
			// Exports without training weights get a uniform expectation.
			weights = make([]float64, leaves)
			for i := range weights {
				weights[i] = 1
			}
		}
		m.trees = append(m.trees, buildOblivious(splits, ot.LeafValues, weights))
	}

	return m, nil
}

func parseScaleAndBias(raw json.RawMessage) (float64, float64, error) {
	if len(raw) == 0 {
		return 1, 0, nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return 0, 0, fmt.Errorf("malformed scale_and_bias %s", string(raw))
	}
	var scale float64
	if err := json.Unmarshal(pair[0], &scale); err != nil {
		return 0, 0, fmt.Errorf("malformed scale: %w", err)
	}

	// Newer exports store the bias as a per-dimension list.
	var bias float64
	if err := json.Unmarshal(pair[1], &bias); err != nil {
		var biases []float64
		if err := json.Unmarshal(pair[1], &biases); err != nil || len(biases) != 1 {
			return 0, 0, fmt.Errorf("malformed bias %s", string(pair[1]))
		}
		bias = biases[0]
	}
	return scale, bias, nil
}

type obliviousSplit struct {
	feature int
	border  float64
}

// buildOblivious expands an oblivious tree into an explicit binary tree.
// Level d splits on splits[d] and contributes bit d of the leaf index.
func buildOblivious(splits []obliviousSplit, values, weights []float64) tree {
	t := tree{nodes: make([]treeNode, 0, 2<<len(splits))}
	var build func(level, index int) int
	build = func(level, index int) int {
		id := len(t.nodes)
		t.nodes = append(t.nodes, treeNode{left: -1, right: -1})
		if level == len(splits) {
			t.nodes[id].value = values[index]
			t.nodes[id].cover = weights[index]
			return id
		}
		left := build(level+1, index)
		right := build(level+1, index|1<<level)
		t.nodes[id] = treeNode{
			feature:   splits[level].feature,
			threshold: splits[level].border,
			left:      left,
			right:     right,
			cover:     t.nodes[left].cover + t.nodes[right].cover,
		}
		return id
	}
	build(0, 0)
	return t
}

func (m *TreeEnsemble) NumFeatures() int       { return m.numFeatures }
func (m *TreeEnsemble) FeatureNames() []string { return m.names }
func (m *TreeEnsemble) NumTrees() int          { return len(m.trees) }

func (m *TreeEnsemble) Predict(x []float64) (float64, error) {
	if err := checkArity(x, m.numFeatures); err != nil {
		return 0, err
	}
	total := 0.0
	for i := range m.trees {
		total += m.trees[i].predict(x)
	}
	return m.scale*total + m.bias, nil
}

// Attribute implements Explainer with path-dependent TreeSHAP.
func (m *TreeEnsemble) Attribute(x []float64) (Attribution, error) {
	if err := checkArity(x, m.numFeatures); err != nil {
		return Attribution{}, err
	}
	phi := make([]float64, m.numFeatures)
	base := 0.0
	for i := range m.trees {
		m.trees[i].shap(x, phi)
		base += m.trees[i].expectedValue()
	}
	for i := range phi {
		phi[i] *= m.scale
		if math.IsNaN(phi[i]) || math.IsInf(phi[i], 0) {
			return Attribution{}, fmt.Errorf("contribution of feature %d is not finite", i)
		}
	}
	return Attribution{Values: phi, BaseValue: m.scale*base + m.bias}, nil
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}
