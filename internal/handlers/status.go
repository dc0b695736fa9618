package handlers

import (
	"context"
	"net/http"

	"apexdispatch/internal/logging"
	"apexdispatch/internal/middleware"
	"apexdispatch/internal/models"
	"apexdispatch/internal/services"

	"golang.org/x/sync/errgroup"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type StatusHandler struct {
	processing *services.ProcessingService
	upscaling  *services.UpscalingService
	db         Pinger
}

func NewStatusHandler(processing *services.ProcessingService, upscaling *services.UpscalingService, db Pinger) *StatusHandler {
	return &StatusHandler{processing: processing, upscaling: upscaling, db: db}
}

// collectJobsStatus lists tasks and unit jobs concurrently.
func collectJobsStatus(ctx context.Context, processing *services.ProcessingService, upscaling *services.UpscalingService, token, userID string) (*models.JobsStatus, error) {
	var status models.JobsStatus
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, err := upscaling.ListTasks(gctx, token, userID)
		status.UpscalingTasks = tasks
		return err
	})
	g.Go(func() error {
		jobs, err := processing.ListJobs(gctx, token, userID, nil)
		status.ProcessingJobs = jobs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if status.UpscalingTasks == nil {
		status.UpscalingTasks = []models.UpscalingTaskSummary{}
	}
	if status.ProcessingJobs == nil {
		status.ProcessingJobs = []models.ProcessingJobSummary{}
	}
	return &status, nil
}

func (h *StatusHandler) JobsStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := collectJobsStatus(ctx, h.processing, h.upscaling, middleware.Token(ctx), middleware.UserID(ctx))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type componentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Database componentHealth `json:"database"`
}

// Health always answers 200; the database section carries the store state.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	db := componentHealth{Status: "ok"}
	if err := h.db.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Database connection check failed")
		db = componentHealth{Status: "error", Message: err.Error()}
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: db})
}
