package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a decision tree flattened into an array. Children
// are indexes into the same array; leaves carry the class distribution of
// the training samples that reached them.
type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	ClassCounts []int   `json:"class_counts,omitempty"`
	IsLeaf      bool    `json:"is_leaf"`
}

// DecisionTree is a CART classifier over dense float vectors. Labels are
// class indexes in [0, NumClasses).
type DecisionTree struct {
	Nodes      []TreeNode `json:"nodes"`
	NumClasses int        `json:"num_classes"`
}

type treeConfig struct {
	maxDepth       int
	minSamplesLeaf int
	// featuresPerSplit limits the candidate features examined at each
	// split; 0 means all. Used by the forest for decorrelation.
	featuresPerSplit int
	rng              *rand.Rand
}

// Train fits the tree on the full feature set at every split.
func (dt *DecisionTree) Train(features [][]float64, labels []int, numClasses, maxDepth int) error {
	return dt.train(features, labels, numClasses, treeConfig{maxDepth: maxDepth, minSamplesLeaf: 1})
}

func (dt *DecisionTree) train(features [][]float64, labels []int, numClasses int, cfg treeConfig) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses < 2 {
		return errors.New("need at least two classes")
	}
	for _, label := range labels {
		if label < 0 || label >= numClasses {
			return errors.New("label out of range")
		}
	}
	if cfg.maxDepth <= 0 {
		cfg.maxDepth = 8
	}
	if cfg.minSamplesLeaf <= 0 {
		cfg.minSamplesLeaf = 1
	}

	dt.NumClasses = numClasses
	dt.Nodes = buildNodes(features, labels, 0, numClasses, cfg)
	return nil
}

// PredictProba walks the tree and returns the class distribution of the
// reached leaf, normalized to sum to one.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return normalizeCounts(node.ClassCounts, dt.NumClasses), nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

// Predict returns the majority class of the reached leaf and its
// probability.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	return argmax(proba), maxOf(proba), nil
}

func buildNodes(features [][]float64, labels []int, depth, numClasses int, cfg treeConfig) []TreeNode {
	counts := classCounts(labels, numClasses)
	if depth >= cfg.maxDepth || isPure(counts) || len(labels) < 2*cfg.minSamplesLeaf {
		return []TreeNode{leafNode(counts)}
	}

	bestFeature, threshold, ok := findBestSplit(features, labels, numClasses, cfg)
	if !ok {
		return []TreeNode{leafNode(counts)}
	}

	leftF, leftL, rightF, rightL := partition(features, labels, bestFeature, threshold)
	if len(leftL) < cfg.minSamplesLeaf || len(rightL) < cfg.minSamplesLeaf {
		return []TreeNode{leafNode(counts)}
	}

	leftNodes := buildNodes(leftF, leftL, depth+1, numClasses, cfg)
	rightNodes := buildNodes(rightF, rightL, depth+1, numClasses, cfg)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
	}
	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

func leafNode(counts []int) TreeNode {
	return TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		ClassCounts: counts,
		IsLeaf:      true,
	}
}

func findBestSplit(features [][]float64, labels []int, numClasses int, cfg treeConfig) (int, float64, bool) {
	featureCount := len(features[0])
	candidates := candidateFeatures(featureCount, cfg)

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for _, featureIdx := range candidates {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		for _, threshold := range candidateThresholds(values) {
			leftCounts, rightCounts, leftN, rightN := splitCounts(features, labels, featureIdx, threshold, numClasses)
			if leftN == 0 || rightN == 0 {
				continue
			}
			impurity := weightedGini(leftCounts, rightCounts, leftN, rightN)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// candidateFeatures returns the feature indexes examined at a split. With a
// subsample size configured the forest's rng draws a random subset.
func candidateFeatures(featureCount int, cfg treeConfig) []int {
	if cfg.featuresPerSplit <= 0 || cfg.featuresPerSplit >= featureCount || cfg.rng == nil {
		all := make([]int, featureCount)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := cfg.rng.Perm(featureCount)
	picked := perm[:cfg.featuresPerSplit]
	sort.Ints(picked)
	return picked
}

// candidateThresholds returns midpoints between consecutive distinct sorted
// values.
func candidateThresholds(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	thresholds := make([]float64, 0, len(sorted))
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			thresholds = append(thresholds, (sorted[i]+sorted[i-1])/2)
		}
	}
	return thresholds
}

func partition(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	var leftF, rightF [][]float64
	var leftL, rightL []int
	for i, row := range features {
		if row[featureIdx] <= threshold {
			leftF = append(leftF, row)
			leftL = append(leftL, labels[i])
		} else {
			rightF = append(rightF, row)
			rightL = append(rightL, labels[i])
		}
	}
	return leftF, leftL, rightF, rightL
}

func splitCounts(features [][]float64, labels []int, featureIdx int, threshold float64, numClasses int) (left, right []int, leftN, rightN int) {
	left = make([]int, numClasses)
	right = make([]int, numClasses)
	for i, row := range features {
		if row[featureIdx] <= threshold {
			left[labels[i]]++
			leftN++
		} else {
			right[labels[i]]++
			rightN++
		}
	}
	return left, right, leftN, rightN
}

func weightedGini(leftCounts, rightCounts []int, leftN, rightN int) float64 {
	total := float64(leftN + rightN)
	return (float64(leftN)/total)*giniCounts(leftCounts, leftN) +
		(float64(rightN)/total)*giniCounts(rightCounts, rightN)
}

func giniCounts(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(n)
		impurity -= prob * prob
	}
	return impurity
}

func classCounts(labels []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, label := range labels {
		counts[label]++
	}
	return counts
}

func isPure(counts []int) bool {
	nonzero := 0
	for _, count := range counts {
		if count > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func normalizeCounts(counts []int, numClasses int) []float64 {
	proba := make([]float64, numClasses)
	total := 0
	for _, count := range counts {
		total += count
	}
	if total == 0 {
		return proba
	}
	for i, count := range counts {
		if i >= numClasses {
			break
		}
		proba[i] = float64(count) / float64(total)
	}
	return proba
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[argmax(values)]
}
