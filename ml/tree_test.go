package ml

import (
	"reflect"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 1, 1}

	tree := &DecisionTree{}
	if err := tree.Train(features, labels, 2, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := tree.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence <= 0 || confidence > 1 {
		t.Fatalf("confidence out of range: %v", confidence)
	}
}

func TestDecisionTreeProbaSumsToOne(t *testing.T) {
	features := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}}
	labels := []int{0, 0, 0, 1, 1, 0}

	tree := &DecisionTree{}
	if err := tree.Train(features, labels, 2, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	proba, err := tree.PredictProba([]float64{4.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := 0.0
	for _, p := range proba {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("probabilities must sum to 1, got %v", sum)
	}
}

func TestDecisionTreeUntrained(t *testing.T) {
	tree := &DecisionTree{}
	if _, _, err := tree.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for untrained tree")
	}
}

func TestDecisionTreeRejectsBadLabels(t *testing.T) {
	tree := &DecisionTree{}
	if err := tree.Train([][]float64{{1}}, []int{5}, 2, 3); err == nil {
		t.Fatal("expected error for out-of-range label")
	}
}

func TestDecisionTreeDeterministic(t *testing.T) {
	features := [][]float64{{0.1}, {0.4}, {0.6}, {0.9}}
	labels := []int{0, 0, 1, 1}

	a := &DecisionTree{}
	b := &DecisionTree{}
	if err := a.Train(features, labels, 2, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Train(features, labels, 2, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a.Nodes, b.Nodes) {
		t.Fatal("training without subsampling must be deterministic")
	}
}
