package ml

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Confidence buckets derived from the winning class probability.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"

	confidenceHighMin   = 0.85
	confidenceMediumMin = 0.65
)

// Result is one scoring outcome. Label is always a member of the loaded
// artifact's vocabulary.
type Result struct {
	Label         string             `json:"label"`
	Confidence    string             `json:"confidence"`
	Probability   float64            `json:"probability"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// ArtifactInfo is the read-only metadata view exposed to operators.
type ArtifactInfo struct {
	SchemaFingerprint string    `json:"schema_fingerprint"`
	Labels            []string  `json:"labels"`
	TrainedAt         time.Time `json:"trained_at"`
	Seed              int64     `json:"seed"`
	DataPoints        int       `json:"data_points"`
	NumTrees          int       `json:"num_trees"`
	Synthetic         bool      `json:"synthetic"`
}

// Scorer applies a loaded model artifact to encoded vectors. It has two
// states: unloaded and ready. Load moves it to ready only after the
// artifact passes the schema compatibility gate; in the unloaded state
// every Score fails fast instead of attempting a degraded prediction.
//
// The artifact pointer is swapped under an RWMutex so concurrent scoring
// always sees a fully loaded artifact, including across hot reloads.
type Scorer struct {
	schema FeatureSchema
	log    *zap.SugaredLogger

	// AllowSynthetic permits loading smoke-test artifacts. Off in
	// production.
	AllowSynthetic bool

	mu       sync.RWMutex
	artifact *Artifact

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewScorer creates an unloaded scorer bound to the serving schema.
func NewScorer(schema FeatureSchema, log *zap.SugaredLogger) *Scorer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scorer{schema: schema, log: log}
}

// Load reads the artifact and validates it against the serving schema.
// Failure leaves the current state untouched: an unloaded scorer stays
// unloaded, and a hot reload keeps serving the previous artifact.
func (s *Scorer) Load(path string) error {
	artifact, err := LoadArtifact(path)
	if err != nil {
		return err
	}
	if err := s.schema.ValidateCompatibility(artifact.Schema); err != nil {
		return err
	}
	if artifact.Synthetic && !s.AllowSynthetic {
		return fmt.Errorf("%w: artifact is tagged synthetic", ErrArtifactLoad)
	}

	s.mu.Lock()
	s.artifact = artifact
	s.mu.Unlock()

	s.log.Infow("model artifact loaded",
		"path", path,
		"fingerprint", artifact.SchemaFingerprint,
		"labels", artifact.Labels,
		"trees", len(artifact.Forest.Trees),
		"trained_at", artifact.TrainedAt,
		"synthetic", artifact.Synthetic,
	)
	return nil
}

// Ready reports whether an artifact is loaded.
func (s *Scorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifact != nil
}

// Info returns metadata of the loaded artifact, or nil when unloaded.
func (s *Scorer) Info() *ArtifactInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.artifact == nil {
		return nil
	}
	labels := append([]string(nil), s.artifact.Labels...)
	return &ArtifactInfo{
		SchemaFingerprint: s.artifact.SchemaFingerprint,
		Labels:            labels,
		TrainedAt:         s.artifact.TrainedAt,
		Seed:              s.artifact.Seed,
		DataPoints:        s.artifact.DataPoints,
		NumTrees:          len(s.artifact.Forest.Trees),
		Synthetic:         s.artifact.Synthetic,
	}
}

// Score applies the loaded artifact to one encoded vector. Deterministic:
// the same vector against the same artifact always yields the same result.
func (s *Scorer) Score(vec *EncodedVector) (*Result, error) {
	s.mu.RLock()
	artifact := s.artifact
	s.mu.RUnlock()
	if artifact == nil {
		return nil, ErrScorerNotReady
	}

	x, err := artifact.Preprocessor.Transform(artifact.Schema, vec)
	if err != nil {
		return nil, err
	}
	proba, err := artifact.Forest.PredictProba(x)
	if err != nil {
		return nil, err
	}

	winner := argmax(proba)
	probabilities := make(map[string]float64, len(artifact.Labels))
	for i, label := range artifact.Labels {
		probabilities[label] = proba[i]
	}
	return &Result{
		Label:         artifact.Labels[winner],
		Confidence:    confidenceBucket(proba[winner]),
		Probability:   proba[winner],
		Probabilities: probabilities,
	}, nil
}

func confidenceBucket(p float64) string {
	switch {
	case p >= confidenceHighMin:
		return ConfidenceHigh
	case p >= confidenceMediumMin:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Watch reloads the artifact when the file at path is rewritten. The watch
// is on the parent directory because trainers typically replace the file
// atomically via rename. A reload that fails validation is logged and the
// active artifact keeps serving.
func (s *Scorer) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	s.done = make(chan struct{})

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Load(path); err != nil {
					s.log.Warnw("artifact reload rejected, keeping active model", "path", path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warnw("artifact watcher error", "error", err)
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the artifact watcher if one is running.
func (s *Scorer) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}
