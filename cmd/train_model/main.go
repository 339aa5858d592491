package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"preescreen/db"
	"preescreen/ml"
)

func main() {
	dataPath := flag.String("data", "", "path to the labeled training CSV")
	delimiter := flag.String("delimiter", ";", "CSV cell delimiter")
	decimal := flag.String("decimal", ".", "decimal separator in numeric cells")
	labelCol := flag.String("label", "Label", "name of the label column")
	encoding := flag.String("encoding", "", "file encoding (utf-8, windows-1252, latin-1)")
	modelPath := flag.String("model_path", "./models/rf_preeclampsia.json", "artifact output path")
	numTrees := flag.Int("trees", 200, "number of trees in the forest")
	maxDepth := flag.Int("max_depth", 8, "max tree depth")
	folds := flag.Int("folds", 10, "cross-validation folds")
	seed := flag.Int64("seed", 42, "training random seed")
	synthetic := flag.Int("synthetic", 0, "train on N synthetic rows instead of a dataset (smoke tests only)")
	dbPath := flag.String("db", "", "optional sqlite path to record the training run")
	flag.Parse()

	schema := ml.ScreeningSchema()
	cfg := ml.TrainConfig{NumTrees: *numTrees, MaxDepth: *maxDepth, Folds: *folds, Seed: *seed}

	var dataset *ml.Dataset
	isSynthetic := false
	switch {
	case *dataPath != "":
		var err error
		dataset, err = ml.LoadDataset(*dataPath, schema, ml.DatasetOptions{
			Delimiter:   runeOf(*delimiter),
			Decimal:     runeOf(*decimal),
			LabelColumn: *labelCol,
			Encoding:    *encoding,
		})
		if err != nil {
			var missing *ml.MissingColumnsError
			if errors.As(err, &missing) {
				log.Fatalf("training aborted, reconcile schema and data: %v", missing)
			}
			log.Fatalf("failed to load dataset: %v", err)
		}
		log.Printf("loaded %d rows from %s", len(dataset.Rows), *dataPath)
	case *synthetic > 0:
		dataset = ml.GenerateSynthetic(schema, *synthetic, *seed)
		isSynthetic = true
		log.Printf("generated %d synthetic rows (artifact will be tagged synthetic)", len(dataset.Rows))
	default:
		log.Fatal("either -data or -synthetic is required")
	}

	report, err := ml.CrossValidate(schema, dataset, cfg)
	if err != nil {
		log.Fatalf("cross-validation failed: %v", err)
	}
	for _, fold := range report.Folds {
		log.Printf("fold %2d: n=%3d accuracy=%.3f precision=%.3f recall=%.3f f1=%.3f",
			fold.Fold, fold.TestSize, fold.Accuracy, fold.Precision, fold.Recall, fold.F1)
	}
	log.Printf("mean accuracy=%.3f macro precision=%.3f recall=%.3f f1=%.3f",
		report.MeanAccuracy, report.MacroPrecision, report.MacroRecall, report.MacroF1)
	log.Printf("confusion matrix (pooled out-of-fold predictions):\n%s", report.Confusion)

	artifact, err := ml.TrainFinal(schema, dataset, cfg, isSynthetic)
	if err != nil {
		log.Fatalf("final training failed: %v", err)
	}
	if err := artifact.Save(*modelPath); err != nil {
		log.Fatalf("failed to save artifact: %v", err)
	}
	log.Printf("artifact saved to %s (fingerprint %s, labels %v)",
		*modelPath, artifact.SchemaFingerprint, artifact.Labels)

	if *dbPath != "" {
		if err := db.InitDB(*dbPath); err != nil {
			log.Fatalf("failed to open training log db: %v", err)
		}
		defer db.Close()
		run := &db.TrainingRun{
			ModelName:  "rf_preeclampsia",
			Accuracy:   report.MeanAccuracy,
			Precision:  report.MacroPrecision,
			Recall:     report.MacroRecall,
			F1:         report.MacroF1,
			TrainedAt:  artifact.TrainedAt,
			DataPoints: artifact.DataPoints,
			Synthetic:  isSynthetic,
		}
		if err := db.LogTrainingRun(run); err != nil {
			log.Fatalf("failed to record training run: %v", err)
		}
	}

	fmt.Printf("model saved to %s\n", *modelPath)
}

func runeOf(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
