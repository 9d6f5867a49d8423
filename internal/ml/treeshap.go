package ml

// Path-dependent TreeSHAP (Lundberg et al., "Consistent Individualized
// Feature Attribution for Tree Ensembles", algorithm 2). Covers are the
// training weights that reached each node; they define the expectation the
// attribution is measured against.

type treeNode struct {
	feature   int
	threshold float64
	left      int // x[feature] <= threshold, -1 for a leaf
	right     int // x[feature] > threshold
	value     float64
	cover     float64
}

type tree struct {
	nodes []treeNode
}

func (t *tree) isLeaf(i int) bool {
	return t.nodes[i].left < 0
}

// predict walks the tree for x.
func (t *tree) predict(x []float64) float64 {
	i := 0
	for !t.isLeaf(i) {
		n := &t.nodes[i]
		if x[n.feature] > n.threshold {
			i = n.right
		} else {
			i = n.left
		}
	}
	return t.nodes[i].value
}

// expectedValue is the cover-weighted mean output, the value of the empty
// coalition under the same weighting TreeSHAP uses.
func (t *tree) expectedValue() float64 {
	return t.expected(0)
}

func (t *tree) expected(i int) float64 {
	n := &t.nodes[i]
	if t.isLeaf(i) {
		return n.value
	}
	if n.cover == 0 {
		return 0
	}
	l, r := &t.nodes[n.left], &t.nodes[n.right]
	return l.cover/n.cover*t.expected(n.left) + r.cover/n.cover*t.expected(n.right)
}

type pathElem struct {
	feature      int
	zeroFraction float64
	oneFraction  float64
	weight       float64
}

// shap adds the contributions of this tree for x into phi.
func (t *tree) shap(x, phi []float64) {
	t.recurse(0, x, phi, nil, 0, 1, 1, -1)
}

func (t *tree) recurse(node int, x, phi []float64, parentPath []pathElem, depth int, parentZero, parentOne float64, parentFeature int) {
	path := make([]pathElem, depth+1, depth+2)
	copy(path, parentPath)
	extendPath(path, depth, parentZero, parentOne, parentFeature)

	n := &t.nodes[node]
	if t.isLeaf(node) {
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, depth, i)
			el := path[i]
			phi[el.feature] += w * (el.oneFraction - el.zeroFraction) * n.value
		}
		return
	}

	hot, cold := n.left, n.right
	if x[n.feature] > n.threshold {
		hot, cold = n.right, n.left
	}
	var hotZero, coldZero float64
	if n.cover > 0 {
		hotZero = t.nodes[hot].cover / n.cover
		coldZero = t.nodes[cold].cover / n.cover
	}

	incomingZero, incomingOne := 1.0, 1.0
	k := 0
	for ; k <= depth; k++ {
		if path[k].feature == n.feature {
			break
		}
	}
	if k <= depth {
		incomingZero = path[k].zeroFraction
		incomingOne = path[k].oneFraction
		unwindPath(path, depth, k)
		depth--
		path = path[:depth+1]
	}

	// A branch with both fractions zero contributes nothing and would
	// divide by zero when a later split on the same feature unwinds it.
	if hotZero*incomingZero != 0 || incomingOne != 0 {
		t.recurse(hot, x, phi, path, depth+1, hotZero*incomingZero, incomingOne, n.feature)
	}
	if coldZero*incomingZero != 0 {
		t.recurse(cold, x, phi, path, depth+1, coldZero*incomingZero, 0, n.feature)
	}
}

func extendPath(path []pathElem, depth int, zero, one float64, feature int) {
	path[depth] = pathElem{feature: feature, zeroFraction: zero, oneFraction: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

func unwindPath(path []pathElem, depth, k int) {
	one := path[k].oneFraction
	zero := path[k].zeroFraction
	next := path[depth].weight
	d := float64(depth + 1)

	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

func unwoundPathSum(path []pathElem, depth, k int) float64 {
	one := path[k].oneFraction
	zero := path[k].zeroFraction
	next := path[depth].weight
	d := float64(depth + 1)

	total := 0.0
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/d
		} else if zero != 0 {
			total += path[i].weight / zero / (float64(depth-i) / d)
		}
	}
	return total
}
