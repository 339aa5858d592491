package ml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func datasetSchema() FeatureSchema {
	return FeatureSchema{
		{Name: "age", Column: "Umur (Tahun)", Kind: Numeric},
		{Name: "smoker", Column: "Perokok", Kind: Categorical, CatDefault: CategoricalUnknown},
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadDatasetWithHeader(t *testing.T) {
	path := writeTemp(t, "data.csv",
		"Umur (Tahun);Perokok;Label\n"+
			"25; 0 ;NonPreeklampsia\n"+
			"\"38\";1;Preeklampsia\n")

	ds, err := LoadDataset(path, datasetSchema(), DatasetOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ds.Rows))
	}
	if ds.Rows[0]["age"] != "25" || ds.Rows[0]["smoker"] != "0" {
		t.Fatalf("unexpected row: %v", ds.Rows[0])
	}
	if ds.Rows[1]["age"] != "38" {
		t.Fatalf("quoted cell not cleaned: %v", ds.Rows[1])
	}
	if ds.Labels[1] != "Preeklampsia" {
		t.Fatalf("unexpected label: %q", ds.Labels[1])
	}
}

func TestLoadDatasetHeaderless(t *testing.T) {
	path := writeTemp(t, "data.csv",
		"30;1;Preeklampsia\n"+
			"22;0;NonPreeklampsia\n")

	ds, err := LoadDataset(path, datasetSchema(), DatasetOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ds.Rows))
	}
	if ds.Rows[0]["age"] != "30" || ds.Labels[0] != "Preeklampsia" {
		t.Fatalf("positional mapping failed: %v %q", ds.Rows[0], ds.Labels[0])
	}
}

func TestLoadDatasetMissingColumn(t *testing.T) {
	path := writeTemp(t, "data.csv",
		"Umur (Tahun);Label\n"+
			"25;NonPreeklampsia\n")

	_, err := LoadDataset(path, datasetSchema(), DatasetOptions{})
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(missing.Columns) != 1 || missing.Columns[0] != "Perokok" {
		t.Fatalf("unexpected missing columns: %v", missing.Columns)
	}
}

func TestLoadDatasetMissingLabelColumn(t *testing.T) {
	path := writeTemp(t, "data.csv",
		"Umur (Tahun);Perokok\n"+
			"25;0\n")

	if _, err := LoadDataset(path, datasetSchema(), DatasetOptions{}); err == nil {
		t.Fatal("expected error for missing label column")
	}
}

func TestLoadDatasetDecimalComma(t *testing.T) {
	path := writeTemp(t, "data.csv",
		"Umur (Tahun);Perokok;Label\n"+
			"23,5;0;NonPreeklampsia\n")

	ds, err := LoadDataset(path, datasetSchema(), DatasetOptions{Decimal: ','})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows[0]["age"] != "23.5" {
		t.Fatalf("decimal comma not rewritten: %v", ds.Rows[0]["age"])
	}
}

func TestLoadDatasetWindows1252(t *testing.T) {
	// 0xE9 is é in windows-1252 and invalid as standalone UTF-8
	content := []byte("Umur (Tahun);Perokok;Label\n25;caf\xe9;NonPreeklampsia\n")
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	ds, err := LoadDataset(path, datasetSchema(), DatasetOptions{Encoding: "windows-1252"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows[0]["smoker"] != "café" {
		t.Fatalf("expected decoded café, got %q", ds.Rows[0]["smoker"])
	}
}

func TestLoadDatasetUnsupportedEncoding(t *testing.T) {
	path := writeTemp(t, "data.csv", "25;0;NonPreeklampsia\n")
	if _, err := LoadDataset(path, datasetSchema(), DatasetOptions{Encoding: "ebcdic"}); err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}
