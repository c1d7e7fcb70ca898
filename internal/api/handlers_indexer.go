package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// handleIndexerStatus handles GET /api/v1/indexer/status
func (s *Server) handleIndexerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.indexer.GetStatus())
}

// handleReindex handles POST /api/v1/indexer/reindex - schedule a range index
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartHeight int64 `json:"startHeight"`
		EndHeight   int64 `json:"endHeight"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	job, err := s.scheduler.ScheduleRangeIndex(r.Context(), req.StartHeight, req.EndHeight)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, job)
}

// handleScheduleScan handles POST /api/v1/scans - schedule a viewing key scan
func (s *Server) handleScheduleScan(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	var req struct {
		ViewingKey  string `json:"viewingKey"`
		StartHeight int64  `json:"startHeight"`
		EndHeight   int64  `json:"endHeight"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	job, err := s.scheduler.ScheduleViewingKeyScan(r.Context(), req.ViewingKey, uid, req.StartHeight, req.EndHeight)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// The raw key stays in the queue payload only; the response mirrors the
	// job without it
	sanitized := *job
	sanitized.Payload = nil

	respondJSON(w, http.StatusAccepted, &sanitized)
}

// redactJob strips payloads that carry secrets before a record leaves the
// API. Viewing-key scan payloads hold the raw key and are never exposed.
func redactJob(job *models.JobRecord) *models.JobRecord {
	if job.Type != types.JobViewingKeyScan || job.Payload == nil {
		return job
	}
	redacted := *job
	redacted.Payload = nil
	return &redacted
}

// handleJobHistory handles GET /api/v1/jobs
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.jobs.History(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	jobs := make([]*models.JobRecord, len(history))
	for i, job := range history {
		jobs[i] = redactJob(job)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, redactJob(job))
}
