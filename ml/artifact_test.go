package ml

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func trainedArtifact(t *testing.T) *Artifact {
	t.Helper()
	schema := ScreeningSchema()
	ds := GenerateSynthetic(schema, 60, 11)
	artifact, err := TrainFinal(schema, ds, TrainConfig{NumTrees: 5, MaxDepth: 3, Seed: 11}, true)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return artifact
}

func TestArtifactSaveLoadRoundtrip(t *testing.T) {
	artifact := trainedArtifact(t)
	path := filepath.Join(t.TempDir(), "models", "rf.json")

	if err := artifact.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.SchemaFingerprint != artifact.SchemaFingerprint {
		t.Fatal("fingerprint changed across roundtrip")
	}
	if len(loaded.Forest.Trees) != len(artifact.Forest.Trees) {
		t.Fatal("forest changed across roundtrip")
	}
	if !loaded.Synthetic {
		t.Fatal("synthetic tag lost across roundtrip")
	}
}

func TestLoadArtifactMissingFile(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad, got %v", err)
	}
}

func TestLoadArtifactCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rf.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadArtifact(path); !errors.Is(err, ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad, got %v", err)
	}
}

func TestLoadArtifactFingerprintTamper(t *testing.T) {
	artifact := trainedArtifact(t)
	path := filepath.Join(t.TempDir(), "rf.json")
	if err := artifact.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw["schema_fingerprint"], _ = json.Marshal("deadbeef")
	tampered, _ := json.Marshal(raw)
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if _, err := LoadArtifact(path); !errors.Is(err, ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad for tampered fingerprint, got %v", err)
	}
}

// An artifact whose preprocessor no longer covers the schema must be
// refused at load; letting it through would crash the first Transform.
func TestLoadArtifactTruncatedCategories(t *testing.T) {
	artifact := trainedArtifact(t)
	path := filepath.Join(t.TempDir(), "rf.json")
	if err := artifact.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var prep map[string]json.RawMessage
	if err := json.Unmarshal(raw["preprocessor"], &prep); err != nil {
		t.Fatalf("unmarshal preprocessor: %v", err)
	}
	prep["categories"], _ = json.Marshal([][]string{{"0"}})
	raw["preprocessor"], _ = json.Marshal(prep)
	tampered, _ := json.Marshal(raw)
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if _, err := LoadArtifact(path); !errors.Is(err, ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad for truncated categories, got %v", err)
	}
}

func TestLoadArtifactEmptyCategoryList(t *testing.T) {
	artifact := trainedArtifact(t)
	for i, spec := range artifact.Schema {
		if spec.Kind == Categorical {
			artifact.Preprocessor.Categories[i] = nil
			break
		}
	}
	if err := artifact.Save(filepath.Join(t.TempDir(), "rf.json")); err == nil {
		t.Fatal("expected save to reject empty category list")
	}
}

func TestLoadArtifactWrongVersion(t *testing.T) {
	artifact := trainedArtifact(t)
	artifact.FormatVersion = 99
	if err := artifact.Save(filepath.Join(t.TempDir(), "rf.json")); err == nil {
		t.Fatal("expected save to reject unknown format version")
	}
}
