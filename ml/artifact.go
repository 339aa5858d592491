package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactFormatVersion is bumped whenever the serialized layout changes.
// Load refuses artifacts written by a different version rather than
// guessing; a forest deserialized against the wrong layout would still
// "work" and silently misclassify.
const ArtifactFormatVersion = 1

// Artifact is the persisted training output: the fitted preprocessing and
// forest plus everything serving needs to refuse an incompatible pairing.
// Write-once at training time, read-only for every serving process.
type Artifact struct {
	FormatVersion     int           `json:"format_version"`
	SchemaFingerprint string        `json:"schema_fingerprint"`
	Schema            FeatureSchema `json:"schema"`
	Labels            []string      `json:"labels"`
	Preprocessor      *Preprocessor `json:"preprocessor"`
	Forest            *RandomForest `json:"forest"`
	TrainedAt         time.Time     `json:"trained_at"`
	Seed              int64         `json:"seed"`
	DataPoints        int           `json:"data_points"`
	// Synthetic marks smoke-test artifacts built from generated data.
	// They must never serve production traffic.
	Synthetic bool `json:"synthetic"`
}

// Save writes the artifact as JSON, creating parent directories as needed.
func (a *Artifact) Save(path string) error {
	if err := a.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// LoadArtifact reads and validates an artifact file. Any failure wraps
// ErrArtifactLoad; callers treat it as fatal for serving.
func LoadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	if err := artifact.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	return &artifact, nil
}

func (a *Artifact) validate() error {
	if a.FormatVersion != ArtifactFormatVersion {
		return fmt.Errorf("format version %d, expected %d", a.FormatVersion, ArtifactFormatVersion)
	}
	if err := a.Schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %v", err)
	}
	if got := a.Schema.Fingerprint(); got != a.SchemaFingerprint {
		return fmt.Errorf("schema fingerprint %s does not match embedded schema %s", a.SchemaFingerprint, got)
	}
	if len(a.Labels) < 2 {
		return fmt.Errorf("label vocabulary has %d entries", len(a.Labels))
	}
	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return fmt.Errorf("forest is empty")
	}
	if a.Forest.NumClasses != len(a.Labels) {
		return fmt.Errorf("forest has %d classes, vocabulary has %d", a.Forest.NumClasses, len(a.Labels))
	}
	if a.Preprocessor == nil ||
		len(a.Preprocessor.Medians) != len(a.Schema) ||
		len(a.Preprocessor.Modes) != len(a.Schema) ||
		len(a.Preprocessor.Categories) != len(a.Schema) {
		return fmt.Errorf("preprocessor does not cover the schema")
	}
	for i, spec := range a.Schema {
		if spec.Kind == Categorical && len(a.Preprocessor.Categories[i]) == 0 {
			return fmt.Errorf("feature %q has no learned categories", spec.Name)
		}
	}
	return nil
}
