package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"preescreen/db"
	"preescreen/logger"
	"preescreen/ml"
	"preescreen/monitoring"
)

// Scorer is the scoring dependency; satisfied by *ml.Scorer and by fakes in
// tests.
type Scorer interface {
	Score(vec *ml.EncodedVector) (*ml.Result, error)
	Ready() bool
	Info() *ml.ArtifactInfo
}

// userFacingUnavailable is the only message end users see on fatal scoring
// classes; the specific cause goes to the logs.
const userFacingUnavailable = "result unavailable, try again"

var (
	servingSchema = ml.ScreeningSchema()
	scorer        Scorer
	feed          *monitoring.Feed

	// seams for handler tests
	saveSubmission   = db.SaveSubmission
	getSubmission    = db.GetSubmission
	querySubmissions = db.QuerySubmissions
)

// SetScorer installs the scoring dependency.
func SetScorer(s Scorer) { scorer = s }

// SetFeed installs the live results feed; nil disables publishing.
func SetFeed(f *monitoring.Feed) { feed = f }

// RegisterHandlers wires all API routes onto mux.
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/screenings", handleSubmitScreening)
	mux.HandleFunc("GET /api/screenings", handleListScreenings)
	mux.HandleFunc("GET /api/screenings/{id}", handleGetScreening)
	mux.HandleFunc("GET /api/model", handleModelInfo)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := scorer != nil && scorer.Ready()
	status := "ok"
	code := http.StatusOK
	if !ready {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":       status,
		"model_loaded": ready,
	})
}

// screeningResponse is the POST /api/screenings reply.
type screeningResponse struct {
	ID            int64              `json:"id"`
	Label         string             `json:"label"`
	Confidence    string             `json:"confidence"`
	Probability   float64            `json:"probability"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func handleSubmitScreening(w http.ResponseWriter, r *http.Request) {
	var sub ml.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid submission payload")
		return
	}

	vec, err := ml.Encode(sub, servingSchema)
	if err != nil {
		if errors.Is(err, ml.ErrNilSubmission) {
			writeError(w, http.StatusBadRequest, "submission payload is required")
			return
		}
		logger.S().Errorw("encode failed", "error", err)
		writeError(w, http.StatusInternalServerError, userFacingUnavailable)
		return
	}
	if missing := vec.MissingFields(servingSchema); len(missing) > 0 {
		logger.S().Infow("submission fields defaulted", "fields", missing)
	}

	if scorer == nil {
		writeError(w, http.StatusServiceUnavailable, userFacingUnavailable)
		return
	}
	result, err := scorer.Score(vec)
	if err != nil {
		if errors.Is(err, ml.ErrScorerNotReady) {
			logger.S().Warnw("scoring requested before model load")
			writeError(w, http.StatusServiceUnavailable, userFacingUnavailable)
			return
		}
		logger.S().Errorw("scoring failed", "error", err)
		writeError(w, http.StatusInternalServerError, userFacingUnavailable)
		return
	}

	form, err := json.Marshal(sub)
	if err != nil {
		logger.S().Errorw("submission marshal failed", "error", err)
		writeError(w, http.StatusInternalServerError, userFacingUnavailable)
		return
	}
	stored := &db.Submission{
		PatientName: stringField(sub, "patient_name"),
		Form:        form,
		Label:       result.Label,
		Confidence:  result.Confidence,
		Probability: result.Probability,
	}
	id, err := saveSubmission(stored)
	if err != nil {
		logger.S().Errorw("submission save failed", "error", err)
		writeError(w, http.StatusInternalServerError, userFacingUnavailable)
		return
	}

	if feed != nil {
		feed.Publish(monitoring.ScreeningScored, map[string]interface{}{
			"id":         id,
			"label":      result.Label,
			"confidence": result.Confidence,
		})
	}

	writeJSON(w, http.StatusCreated, screeningResponse{
		ID:            id,
		Label:         result.Label,
		Confidence:    result.Confidence,
		Probability:   result.Probability,
		Probabilities: result.Probabilities,
	})
}

// maxListLimit caps the page size a caller can request.
const maxListLimit = 500

func handleListScreenings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	subs, err := querySubmissions(limit)
	if err != nil {
		logger.S().Errorw("submission list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list screenings")
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func handleGetScreening(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid screening id")
		return
	}
	sub, err := getSubmission(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "screening not found")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if scorer == nil || !scorer.Ready() {
		writeError(w, http.StatusServiceUnavailable, "no model loaded")
		return
	}
	writeJSON(w, http.StatusOK, scorer.Info())
}

func handleResultsWS(w http.ResponseWriter, r *http.Request) {
	if feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed disabled")
		return
	}
	feed.ServeWS(w, r)
}

func stringField(sub ml.Submission, key string) string {
	if v, ok := sub[key].(string); ok {
		return v
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
