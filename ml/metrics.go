package ml

import (
	"fmt"
	"strings"
)

// Accuracy is the fraction of matching predictions.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// MacroPrecisionRecallF1 averages per-class precision, recall and F1 with
// equal class weight. With a 20/80 class ratio this is the honest summary;
// plain accuracy rewards predicting the majority class.
func MacroPrecisionRecallF1(yTrue, yPred []int, numClasses int) (precision, recall, f1 float64) {
	if len(yTrue) == 0 || numClasses == 0 {
		return 0, 0, 0
	}
	for class := 0; class < numClasses; class++ {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yPred[i] == class && yTrue[i] == class:
				tp++
			case yPred[i] == class:
				fp++
			case yTrue[i] == class:
				fn++
			}
		}
		var p, r float64
		if tp+fp > 0 {
			p = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			r = float64(tp) / float64(tp+fn)
		}
		precision += p
		recall += r
		if p+r > 0 {
			f1 += 2 * p * r / (p + r)
		}
	}
	n := float64(numClasses)
	return precision / n, recall / n, f1 / n
}

// ConfusionMatrix accumulates true-vs-predicted counts. Rows are true
// classes, columns predicted, both in label vocabulary order.
type ConfusionMatrix struct {
	Labels []string `json:"labels"`
	Counts [][]int  `json:"counts"`
}

func NewConfusionMatrix(labels []string) *ConfusionMatrix {
	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	return &ConfusionMatrix{Labels: labels, Counts: counts}
}

func (cm *ConfusionMatrix) Add(trueClass, predClass int) {
	if trueClass < 0 || trueClass >= len(cm.Labels) || predClass < 0 || predClass >= len(cm.Labels) {
		return
	}
	cm.Counts[trueClass][predClass]++
}

// RowSums returns per-true-class totals; on out-of-fold predictions these
// equal the dataset's class counts.
func (cm *ConfusionMatrix) RowSums() []int {
	sums := make([]int, len(cm.Labels))
	for i, row := range cm.Counts {
		for _, c := range row {
			sums[i] += c
		}
	}
	return sums
}

func (cm *ConfusionMatrix) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s", "true\\pred")
	for _, label := range cm.Labels {
		fmt.Fprintf(&b, "%20s", label)
	}
	b.WriteByte('\n')
	for i, label := range cm.Labels {
		fmt.Fprintf(&b, "%-20s", label)
		for _, count := range cm.Counts[i] {
			fmt.Fprintf(&b, "%20d", count)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
