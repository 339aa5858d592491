package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
)

var (
	database *sql.DB
	// read cache in front of GetSubmission; result pages stay on the DB
	recent *lru.Cache[int64, *Submission]
)

const recentCacheSize = 256

// Submission is one persisted screening: the raw form as submitted plus
// the scoring outcome.
type Submission struct {
	ID          int64           `json:"id"`
	PatientName string          `json:"patient_name"`
	Form        json.RawMessage `json:"form"`
	Label       string          `json:"label"`
	Confidence  string          `json:"confidence"`
	Probability float64         `json:"probability"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TrainingRun is one training pipeline execution summary.
type TrainingRun struct {
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
	Synthetic  bool      `json:"synthetic"`
}

// InitDB opens the SQLite database and creates the schema.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS submissions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        patient_name TEXT NOT NULL,
        form TEXT NOT NULL,
        label TEXT NOT NULL,
        confidence TEXT NOT NULL,
        probability REAL NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        trained_at DATETIME,
        data_points INTEGER,
        synthetic INTEGER DEFAULT 0
    );
    `
	if _, err = database.Exec(query); err != nil {
		return err
	}

	recent, err = lru.New[int64, *Submission](recentCacheSize)
	return err
}

// Close releases the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	return database.Close()
}

// SaveSubmission persists a scored submission and returns its id.
func SaveSubmission(s *Submission) (int64, error) {
	if database == nil {
		return 0, errors.New("database not initialized")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res, err := database.Exec(`
        INSERT INTO submissions (patient_name, form, label, confidence, probability, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		s.PatientName, string(s.Form), s.Label, s.Confidence, s.Probability, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	cached := *s
	recent.Add(id, &cached)
	return id, nil
}

// GetSubmission fetches one submission by id, serving repeats from the
// cache. Returns a copy: cached entries are never handed out for mutation.
func GetSubmission(id int64) (*Submission, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if s, ok := recent.Get(id); ok {
		out := *s
		return &out, nil
	}

	var s Submission
	var form string
	err := database.QueryRow(`
        SELECT id, patient_name, form, label, confidence, probability, created_at
        FROM submissions WHERE id = ?`, id).
		Scan(&s.ID, &s.PatientName, &form, &s.Label, &s.Confidence, &s.Probability, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Form = json.RawMessage(form)
	cached := s
	recent.Add(s.ID, &cached)
	return &s, nil
}

// QuerySubmissions lists the most recent submissions.
func QuerySubmissions(limit int) ([]*Submission, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT id, patient_name, form, label, confidence, probability, created_at
        FROM submissions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*Submission, 0)
	for rows.Next() {
		var s Submission
		var form string
		if err := rows.Scan(&s.ID, &s.PatientName, &form, &s.Label, &s.Confidence, &s.Probability, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Form = json.RawMessage(form)
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

// LogTrainingRun records a training pipeline execution.
func LogTrainingRun(run *TrainingRun) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now().UTC()
	}
	_, err := database.Exec(`
        INSERT INTO training_log (model_name, accuracy, precision, recall, f1, trained_at, data_points, synthetic)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelName, run.Accuracy, run.Precision, run.Recall, run.F1, run.TrainedAt, run.DataPoints, run.Synthetic)
	return err
}

// LoadTrainingLog returns training runs, newest first.
func LoadTrainingLog() ([]TrainingRun, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT model_name, accuracy, precision, recall, f1, trained_at, data_points, synthetic
        FROM training_log
        ORDER BY trained_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(&run.ModelName, &run.Accuracy, &run.Precision, &run.Recall, &run.F1, &run.TrainedAt, &run.DataPoints, &run.Synthetic); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
