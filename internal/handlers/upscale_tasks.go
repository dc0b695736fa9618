package handlers

import (
	"net/http"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/middleware"
	"apexdispatch/internal/models"
	"apexdispatch/internal/services"
)

type UpscaleTasksHandler struct {
	upscaling *services.UpscalingService
}

func NewUpscaleTasksHandler(upscaling *services.UpscalingService) *UpscaleTasksHandler {
	return &UpscaleTasksHandler{upscaling: upscaling}
}

// CreateTask records the task and starts creating its child jobs in the background.
func (h *UpscaleTasksHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req models.UpscalingTaskRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ctx := r.Context()
	userID := middleware.UserID(ctx)
	task, err := h.upscaling.CreateTask(ctx, userID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.upscaling.ScheduleTaskJobs(ctx, middleware.Token(ctx), userID, task, req)
	respondJSON(w, http.StatusCreated, task.Summary())
}

func (h *UpscaleTasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks, err := h.upscaling.ListTasks(ctx, middleware.Token(ctx), middleware.UserID(ctx))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

func (h *UpscaleTasksHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := r.Context()
	task, err := h.upscaling.GetTask(ctx, middleware.Token(ctx), middleware.UserID(ctx), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if task == nil {
		respondError(w, r, apierr.TaskNotFound(id))
		return
	}
	respondJSON(w, http.StatusOK, task)
}
