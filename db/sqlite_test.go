package db

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		Close()
		database = nil
	})
}

func TestSaveAndGetSubmission(t *testing.T) {
	initTestDB(t)

	id, err := SaveSubmission(&Submission{
		PatientName: "Ibu Sari",
		Form:        json.RawMessage(`{"patient_age":"34"}`),
		Label:       "Preeklampsia",
		Confidence:  "high",
		Probability: 0.91,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := GetSubmission(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PatientName != "Ibu Sari" || got.Label != "Preeklampsia" {
		t.Fatalf("unexpected submission: %+v", got)
	}
}

// Callers must not be able to poison cache hits through the returned
// pointer.
func TestGetSubmissionReturnsCopy(t *testing.T) {
	initTestDB(t)

	id, err := SaveSubmission(&Submission{
		PatientName: "Ibu Rina",
		Form:        json.RawMessage(`{}`),
		Label:       "NonPreeklampsia",
		Confidence:  "medium",
		Probability: 0.7,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := GetSubmission(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Label = "mutated"

	second, err := GetSubmission(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Label != "NonPreeklampsia" {
		t.Fatalf("cache entry was mutated through a caller pointer: %+v", second)
	}
}

func TestSaveSubmissionDoesNotAliasCaller(t *testing.T) {
	initTestDB(t)

	sub := &Submission{
		PatientName: "Ibu Dewi",
		Form:        json.RawMessage(`{}`),
		Label:       "Preeklampsia",
		Confidence:  "low",
		Probability: 0.55,
	}
	id, err := SaveSubmission(sub)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	sub.Label = "mutated"

	got, err := GetSubmission(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "Preeklampsia" {
		t.Fatalf("cache aliased the caller's struct: %+v", got)
	}
}

func TestQuerySubmissionsNewestFirst(t *testing.T) {
	initTestDB(t)

	for _, name := range []string{"a", "b", "c"} {
		if _, err := SaveSubmission(&Submission{
			PatientName: name,
			Form:        json.RawMessage(`{}`),
			Label:       "NonPreeklampsia",
			Confidence:  "low",
			Probability: 0.5,
		}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	subs, err := QuerySubmissions(2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(subs))
	}
	if subs[0].PatientName != "c" || subs[1].PatientName != "b" {
		t.Fatalf("expected newest first, got %s, %s", subs[0].PatientName, subs[1].PatientName)
	}
}
