package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/services/jobs"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	jobs   JobManager
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobManager JobManager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobManager,
		logger: logger,
	}
}

// ListJobsHandler returns every tracked job
// GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	infos, err := h.jobs.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, StatusForError(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  infos,
		"count": len(infos),
	})
}

// SubmitJobHandler submits a new detection job
// POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	var req jobs.SubmitRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		h.logger.Warn().Err(err).Str("input", req.Input).Msg("Job submission failed")
		WriteError(w, StatusForError(err), err.Error())
		return
	}

	code := http.StatusOK
	if result.Outcome == jobs.OutcomeQueued {
		code = http.StatusCreated
	}
	WriteJSON(w, code, result)
}

// AddManualJobHandler tracks a job id obtained elsewhere
// POST /api/jobs/manual
func (h *JobHandler) AddManualJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req jobs.ManualRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.AddManual(r.Context(), req)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", req.ID).Msg("Adding job failed")
		WriteError(w, StatusForError(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// GetJobHandler returns one job
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	id := extractJobID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	info, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		WriteError(w, StatusForError(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// GetJobResultsHandler returns the parsed results file of a completed job
// GET /api/jobs/{id}/results
func (h *JobHandler) GetJobResultsHandler(w http.ResponseWriter, r *http.Request) {
	id := extractJobID(strings.TrimSuffix(r.URL.Path, "/results"))
	if id == "" {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	results, err := h.jobs.Results(r.Context(), id)
	if err != nil {
		WriteError(w, StatusForError(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":   id,
		"cavities": results.Cavities(),
		"results":  results,
	})
}

// AcknowledgeHandler resumes polling after a job-expired notification
// POST /api/notifications/ack
func (h *JobHandler) AcknowledgeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.jobs.Acknowledge()
	WriteSuccess(w, "Notification acknowledged")
}

// extractJobID returns the id segment of /api/jobs/{id}.
func extractJobID(path string) string {
	id := strings.TrimPrefix(path, "/api/jobs/")
	if id == path || strings.Contains(id, "/") {
		return ""
	}
	return id
}
