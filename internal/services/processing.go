package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/audit"
	"apexdispatch/internal/logging"
	"apexdispatch/internal/models"
	"apexdispatch/internal/platforms"
)

type ProcessingService struct {
	store     Store
	platforms PlatformResolver
}

func NewProcessingService(store Store, resolver PlatformResolver) *ProcessingService {
	return &ProcessingService{store: store, platforms: resolver}
}

// CreateJob dispatches req and records the job. When parentTaskID is set a failed dispatch is
// recorded as a FAILED job instead of being returned.
func (s *ProcessingService) CreateJob(ctx context.Context, token, userID string, req models.BaseJobRequest, parentTaskID *int64) (*models.ProcessingJobSummary, error) {
	log := logging.FromContext(ctx).WithField("label", req.Label)

	platform, err := s.platforms.Get(req.Label)
	if err != nil {
		return nil, err
	}

	record := &models.ProcessingJob{
		UserID:          userID,
		Title:           req.Title,
		Label:           req.Label,
		Status:          models.StatusCreated,
		Service:         req.Service,
		Parameters:      req.Parameters,
		UpscalingTaskID: parentTaskID,
	}

	platformJobID, err := platform.ExecuteJob(ctx, token, req.Title, req.Service, req.Parameters, req.Format)
	if err != nil {
		if parentTaskID == nil {
			log.WithError(err).Error("Failed to dispatch processing job")
			return nil, err
		}
		log.WithError(err).WithField("upscaling_task_id", *parentTaskID).Warn("Dispatch failed, recording failed child job")
		record.Status = models.StatusFailed
		saved, saveErr := s.store.SaveJob(ctx, record)
		if saveErr != nil {
			return nil, fmt.Errorf("recording failed dispatch: %w", saveErr)
		}
		audit.Log(ctx, audit.EventJobDispatchFailed, userID, saved.ID, map[string]interface{}{
			"upscaling_task_id": *parentTaskID,
			"error":             err.Error(),
		})
		summary := saved.Summary()
		return &summary, nil
	}

	record.PlatformJobID = &platformJobID
	saved, err := s.store.SaveJob(ctx, record)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.EventJobCreated, userID, saved.ID, map[string]interface{}{
		"label":           saved.Label,
		"platform_job_id": platformJobID,
	})
	summary := saved.Summary()
	return &summary, nil
}

// RefreshJobStatus polls the platform for an active job and stores the status when it changed.
// Terminal jobs are returned as is.
func (s *ProcessingService) RefreshJobStatus(ctx context.Context, token string, job *models.ProcessingJob) (models.ProcessingStatus, error) {
	if job.Status.IsTerminal() || job.PlatformJobID == nil {
		return job.Status, nil
	}
	platform, err := s.platforms.Get(job.Label)
	if err != nil {
		return job.Status, err
	}
	status, err := platform.JobStatus(ctx, token, *job.PlatformJobID, job.Service)
	if err != nil {
		return job.Status, err
	}
	if status == job.Status {
		return status, nil
	}
	if err := s.store.UpdateJobStatus(ctx, job.ID, status); err != nil {
		return job.Status, err
	}
	audit.Log(ctx, audit.EventJobStatusChanged, job.UserID, job.ID, map[string]interface{}{
		"from": job.Status,
		"to":   status,
	})
	job.Status = status
	return status, nil
}

// ListJobs returns the user's unit jobs, or the children of parentTaskID, with refreshed statuses.
// A failed refresh keeps the stored status.
func (s *ProcessingService) ListJobs(ctx context.Context, token, userID string, parentTaskID *int64) ([]models.ProcessingJobSummary, error) {
	jobs, err := s.store.GetJobsByUser(ctx, userID, parentTaskID)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.ProcessingJobSummary, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if _, err := s.RefreshJobStatus(ctx, token, job); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("job_id", job.ID).Warn("Could not refresh job status")
		}
		summaries = append(summaries, job.Summary())
	}
	return summaries, nil
}

// GetJob returns the job with a refreshed status, or nil when the user owns no such job.
func (s *ProcessingService) GetJob(ctx context.Context, token, userID string, id int64) (*models.ProcessingJob, error) {
	job, err := s.store.GetJobByIDAndUser(ctx, id, userID)
	if err != nil || job == nil {
		return nil, err
	}
	if _, err := s.RefreshJobStatus(ctx, token, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJobResults fetches the platform results of a job. found is false when the user owns no such job.
// Only jobs stored as finished are fetched; the stored status is not refreshed here.
func (s *ProcessingService) GetJobResults(ctx context.Context, token, userID string, id int64) (results json.RawMessage, found bool, err error) {
	job, err := s.store.GetJobByIDAndUser(ctx, id, userID)
	if err != nil || job == nil {
		return nil, false, err
	}
	if job.PlatformJobID == nil {
		return nil, true, apierr.New(http.StatusConflict, apierr.CodeNoResults,
			fmt.Sprintf("Processing job %d was never dispatched and has no results", id))
	}
	if job.Status != models.StatusFinished {
		return nil, true, apierr.New(http.StatusConflict, apierr.CodeNoResults,
			fmt.Sprintf("Processing job %d is %s and has no results yet", id, job.Status))
	}
	platform, err := s.platforms.Get(job.Label)
	if err != nil {
		return nil, true, err
	}
	results, err = platform.JobResults(ctx, token, *job.PlatformJobID, job.Service)
	return results, true, err
}

// CreateSyncJob runs req on its platform and returns the raw result. Nothing is stored.
func (s *ProcessingService) CreateSyncJob(ctx context.Context, token, userID string, req models.BaseJobRequest) (*platforms.SyncResult, error) {
	platform, err := s.platforms.Get(req.Label)
	if err != nil {
		return nil, err
	}
	res, err := platform.ExecuteSyncJob(ctx, token, req.Title, req.Service, req.Parameters, req.Format)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.EventSyncJobExecuted, userID, 0, map[string]interface{}{
		"label":    req.Label,
		"endpoint": req.Service.Endpoint,
		"bytes":    len(res.Body),
	})
	return res, nil
}

func (s *ProcessingService) ServiceParameters(ctx context.Context, token string, req models.ParamRequest) ([]models.Parameter, error) {
	platform, err := s.platforms.Get(req.Label)
	if err != nil {
		return nil, err
	}
	return platform.ServiceParameters(ctx, token, req.Service)
}
