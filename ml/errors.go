package ml

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch means the serving schema and the artifact schema
	// disagree in name, order, or kind. Serving must not start.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// ErrArtifactLoad means the artifact file is missing, corrupt, or was
	// written by an incompatible format version.
	ErrArtifactLoad = errors.New("model artifact load failed")

	// ErrNilSubmission means there was no submission payload at all.
	ErrNilSubmission = errors.New("submission is nil")

	// ErrScorerNotReady means Score was called before a successful load.
	ErrScorerNotReady = errors.New("scorer not ready: no model artifact loaded")
)

// MissingColumnsError aborts training when schema-declared columns are
// absent from the dataset, listing them so schema and data can be
// reconciled by hand.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("dataset missing schema columns: %s", strings.Join(e.Columns, ", "))
}
