package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Canonical label vocabulary. Datasets labeled 0/1 are remapped to these at
// publish time so every artifact exposes the same vocabulary to the scorer
// regardless of how it was trained.
const (
	LabelNegative = "NonPreeklampsia"
	LabelPositive = "Preeklampsia"
)

// TrainConfig are the training hyperparameters. Zero values fall back to
// the reference configuration (200 trees, depth 8, 10 folds, seed 42).
type TrainConfig struct {
	NumTrees int
	MaxDepth int
	Folds    int
	Seed     int64
}

func (c TrainConfig) withDefaults() TrainConfig {
	if c.NumTrees <= 0 {
		c.NumTrees = 200
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 8
	}
	if c.Folds <= 0 {
		c.Folds = 10
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	return c
}

// FoldReport is one cross-validation fold's test metrics.
type FoldReport struct {
	Fold      int     `json:"fold"`
	TestSize  int     `json:"test_size"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision_macro"`
	Recall    float64 `json:"recall_macro"`
	F1        float64 `json:"f1_macro"`
}

// CVReport aggregates a stratified k-fold run. The confusion matrix pools
// out-of-fold predictions, so its row sums equal the dataset's class
// counts.
type CVReport struct {
	Folds          []FoldReport     `json:"folds"`
	MeanAccuracy   float64          `json:"mean_accuracy"`
	MacroPrecision float64          `json:"macro_precision"`
	MacroRecall    float64          `json:"macro_recall"`
	MacroF1        float64          `json:"macro_f1"`
	Confusion      *ConfusionMatrix `json:"confusion"`
}

// NormalizeLabels builds the label vocabulary (sorted) and maps each raw
// label to its vocabulary index. Plain 0/1 labels are remapped to the
// canonical string vocabulary; string labels are preserved verbatim.
func NormalizeLabels(raw []string) ([]string, []int, error) {
	if len(raw) == 0 {
		return nil, nil, errors.New("no labels")
	}

	binary := true
	for _, label := range raw {
		if label != "0" && label != "1" {
			binary = false
			break
		}
	}

	cleaned := make([]string, len(raw))
	for i, label := range raw {
		if binary {
			if label == "1" {
				cleaned[i] = LabelPositive
			} else {
				cleaned[i] = LabelNegative
			}
			continue
		}
		cleaned[i] = label
	}

	seen := make(map[string]bool)
	var vocab []string
	for _, label := range cleaned {
		if !seen[label] {
			seen[label] = true
			vocab = append(vocab, label)
		}
	}
	if len(vocab) < 2 {
		return nil, nil, fmt.Errorf("need at least two classes, got %v", vocab)
	}
	sort.Strings(vocab)

	index := make(map[string]int, len(vocab))
	for i, label := range vocab {
		index[label] = i
	}
	indexed := make([]int, len(cleaned))
	for i, label := range cleaned {
		indexed[i] = index[label]
	}
	return vocab, indexed, nil
}

// StratifiedFolds assigns each row to one of k folds, preserving class
// proportions: indices are shuffled within each class and dealt
// round-robin. Deterministic for a given seed.
func StratifiedFolds(labels []int, k int, seed int64) [][]int {
	byClass := make(map[int][]int)
	classes := make([]int, 0)
	for i, label := range labels {
		if _, ok := byClass[label]; !ok {
			classes = append(classes, label)
		}
		byClass[label] = append(byClass[label], i)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	for _, class := range classes {
		indices := byClass[class]
		rng.Shuffle(len(indices), func(a, b int) {
			indices[a], indices[b] = indices[b], indices[a]
		})
		for pos, idx := range indices {
			fold := pos % k
			folds[fold] = append(folds[fold], idx)
		}
	}
	for _, fold := range folds {
		sort.Ints(fold)
	}
	return folds
}

// CrossValidate runs stratified k-fold cross-validation. Every fold fits
// its own preprocessor on the training split only, so imputation medians
// and category vocabularies never leak from the held-out rows.
func CrossValidate(schema FeatureSchema, ds *Dataset, cfg TrainConfig) (*CVReport, error) {
	cfg = cfg.withDefaults()
	vectors, vocab, labels, err := encodeDataset(schema, ds)
	if err != nil {
		return nil, err
	}
	if cfg.Folds > len(vectors) {
		return nil, fmt.Errorf("%d folds for %d rows", cfg.Folds, len(vectors))
	}

	folds := StratifiedFolds(labels, cfg.Folds, cfg.Seed)
	report := &CVReport{Confusion: NewConfusionMatrix(vocab)}

	for foldNum, testIdx := range folds {
		if len(testIdx) == 0 {
			continue
		}
		inTest := make(map[int]bool, len(testIdx))
		for _, idx := range testIdx {
			inTest[idx] = true
		}

		var trainVecs []*EncodedVector
		var trainLabels []int
		for i, vec := range vectors {
			if !inTest[i] {
				trainVecs = append(trainVecs, vec)
				trainLabels = append(trainLabels, labels[i])
			}
		}

		prep, err := FitPreprocessor(schema, trainVecs)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", foldNum, err)
		}
		trainX := make([][]float64, len(trainVecs))
		for i, vec := range trainVecs {
			if trainX[i], err = prep.Transform(schema, vec); err != nil {
				return nil, fmt.Errorf("fold %d: %w", foldNum, err)
			}
		}

		forest := NewRandomForest(cfg.NumTrees, cfg.MaxDepth, cfg.Seed+int64(foldNum)*1000)
		if err := forest.Fit(trainX, trainLabels, len(vocab)); err != nil {
			return nil, fmt.Errorf("fold %d: %w", foldNum, err)
		}

		yTrue := make([]int, 0, len(testIdx))
		yPred := make([]int, 0, len(testIdx))
		for _, idx := range testIdx {
			x, err := prep.Transform(schema, vectors[idx])
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", foldNum, err)
			}
			pred, _, err := forest.Predict(x)
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", foldNum, err)
			}
			yTrue = append(yTrue, labels[idx])
			yPred = append(yPred, pred)
			report.Confusion.Add(labels[idx], pred)
		}

		precision, recall, f1 := MacroPrecisionRecallF1(yTrue, yPred, len(vocab))
		report.Folds = append(report.Folds, FoldReport{
			Fold:      foldNum + 1,
			TestSize:  len(testIdx),
			Accuracy:  Accuracy(yTrue, yPred),
			Precision: precision,
			Recall:    recall,
			F1:        f1,
		})
	}

	for _, fold := range report.Folds {
		report.MeanAccuracy += fold.Accuracy
		report.MacroPrecision += fold.Precision
		report.MacroRecall += fold.Recall
		report.MacroF1 += fold.F1
	}
	if n := float64(len(report.Folds)); n > 0 {
		report.MeanAccuracy /= n
		report.MacroPrecision /= n
		report.MacroRecall /= n
		report.MacroF1 /= n
	}
	return report, nil
}

// TrainFinal refits preprocessor and forest on the entire dataset and
// packages the artifact. Cross-validation reports generalization; this
// model is the one that ships.
func TrainFinal(schema FeatureSchema, ds *Dataset, cfg TrainConfig, synthetic bool) (*Artifact, error) {
	cfg = cfg.withDefaults()
	vectors, vocab, labels, err := encodeDataset(schema, ds)
	if err != nil {
		return nil, err
	}

	prep, err := FitPreprocessor(schema, vectors)
	if err != nil {
		return nil, err
	}
	trainX := make([][]float64, len(vectors))
	for i, vec := range vectors {
		if trainX[i], err = prep.Transform(schema, vec); err != nil {
			return nil, err
		}
	}

	forest := NewRandomForest(cfg.NumTrees, cfg.MaxDepth, cfg.Seed)
	if err := forest.Fit(trainX, labels, len(vocab)); err != nil {
		return nil, err
	}

	return &Artifact{
		FormatVersion:     ArtifactFormatVersion,
		SchemaFingerprint: schema.Fingerprint(),
		Schema:            schema,
		Labels:            vocab,
		Preprocessor:      prep,
		Forest:            forest,
		TrainedAt:         time.Now().UTC(),
		Seed:              cfg.Seed,
		DataPoints:        len(vectors),
		Synthetic:         synthetic,
	}, nil
}

// encodeDataset runs every dataset row through the shared inference
// encoder. Training never builds vectors its own way; this is what keeps
// the two paths from diverging.
func encodeDataset(schema FeatureSchema, ds *Dataset) ([]*EncodedVector, []string, []int, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, nil, nil, errors.New("dataset is empty")
	}
	if len(ds.Rows) != len(ds.Labels) {
		return nil, nil, nil, errors.New("rows and labels size mismatch")
	}

	vectors := make([]*EncodedVector, len(ds.Rows))
	for i, row := range ds.Rows {
		vec, err := Encode(row, schema)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		vectors[i] = vec
	}

	vocab, labels, err := NormalizeLabels(ds.Labels)
	if err != nil {
		return nil, nil, nil, err
	}
	return vectors, vocab, labels, nil
}
