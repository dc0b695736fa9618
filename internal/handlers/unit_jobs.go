package handlers

import (
	"net/http"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/middleware"
	"apexdispatch/internal/models"
	"apexdispatch/internal/services"
)

type UnitJobsHandler struct {
	processing *services.ProcessingService
}

func NewUnitJobsHandler(processing *services.ProcessingService) *UnitJobsHandler {
	return &UnitJobsHandler{processing: processing}
}

// CreateJob dispatches a standalone processing job.
func (h *UnitJobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.BaseJobRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ctx := r.Context()
	summary, err := h.processing.CreateJob(ctx, middleware.Token(ctx), middleware.UserID(ctx), req, nil)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, summary)
}

func (h *UnitJobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobs, err := h.processing.ListJobs(ctx, middleware.Token(ctx), middleware.UserID(ctx), nil)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

func (h *UnitJobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := r.Context()
	job, err := h.processing.GetJob(ctx, middleware.Token(ctx), middleware.UserID(ctx), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if job == nil {
		respondError(w, r, apierr.JobNotFound(id))
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// GetJobResults proxies the result collection of a job from its platform.
func (h *UnitJobsHandler) GetJobResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := r.Context()
	results, found, err := h.processing.GetJobResults(ctx, middleware.Token(ctx), middleware.UserID(ctx), id)
	if !found && err == nil {
		err = apierr.JobNotFound(id)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// CreateSyncJob runs a job synchronously and returns the platform payload untouched.
func (h *UnitJobsHandler) CreateSyncJob(w http.ResponseWriter, r *http.Request) {
	var req models.BaseJobRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ctx := r.Context()
	res, err := h.processing.CreateSyncJob(ctx, middleware.Token(ctx), middleware.UserID(ctx), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(res.Body)
}

func (h *UnitJobsHandler) ServiceParameters(w http.ResponseWriter, r *http.Request) {
	var req models.ParamRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	params, err := h.processing.ServiceParameters(r.Context(), middleware.Token(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if params == nil {
		params = []models.Parameter{}
	}
	respondJSON(w, http.StatusOK, params)
}
