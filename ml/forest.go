package ml

import (
	"errors"
	"math"
	"math/rand"
	"sync"
)

// RandomForest is a bagged ensemble of decision trees. Each tree trains on
// a bootstrap sample with sqrt-of-features subsampling at every split, and
// prediction averages the per-tree class distributions. Randomness exists
// only at fit time; a fitted forest predicts deterministically.
type RandomForest struct {
	Trees      []*DecisionTree `json:"trees"`
	NumClasses int             `json:"num_classes"`
	NumTrees   int             `json:"num_trees"`
	MaxDepth   int             `json:"max_depth"`
	Seed       int64           `json:"seed"`
}

// NewRandomForest creates an unfitted forest.
func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	if numTrees <= 0 {
		numTrees = 200
	}
	if maxDepth <= 0 {
		maxDepth = 8
	}
	return &RandomForest{NumTrees: numTrees, MaxDepth: maxDepth, Seed: seed}
}

// Fit trains the ensemble. Trees are fit in parallel; each draws from its
// own seeded source so the forest is reproducible regardless of goroutine
// scheduling.
func (rf *RandomForest) Fit(features [][]float64, labels []int, numClasses int) error {
	if len(features) == 0 {
		return errors.New("features empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses < 2 {
		return errors.New("need at least two classes")
	}

	n := len(features)
	featuresPerSplit := int(math.Sqrt(float64(len(features[0]))))
	if featuresPerSplit < 1 {
		featuresPerSplit = 1
	}

	rf.NumClasses = numClasses
	rf.Trees = make([]*DecisionTree, rf.NumTrees)

	var wg sync.WaitGroup
	errCh := make(chan error, rf.NumTrees)
	for t := 0; t < rf.NumTrees; t++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(rf.Seed + int64(idx)))

			sampleF := make([][]float64, n)
			sampleL := make([]int, n)
			for j := 0; j < n; j++ {
				pick := rng.Intn(n)
				sampleF[j] = features[pick]
				sampleL[j] = labels[pick]
			}

			tree := &DecisionTree{}
			err := tree.train(sampleF, sampleL, numClasses, treeConfig{
				maxDepth:         rf.MaxDepth,
				minSamplesLeaf:   1,
				featuresPerSplit: featuresPerSplit,
				rng:              rng,
			})
			if err != nil {
				errCh <- err
				return
			}
			rf.Trees[idx] = tree
		}(t)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

// PredictProba averages the class distributions of all trees.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, errors.New("forest not trained")
	}
	sum := make([]float64, rf.NumClasses)
	for _, tree := range rf.Trees {
		proba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for i, p := range proba {
			sum[i] += p
		}
	}
	for i := range sum {
		sum[i] /= float64(len(rf.Trees))
	}
	return sum, nil
}

// Predict returns the argmax class and its averaged probability.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	return argmax(proba), maxOf(proba), nil
}
