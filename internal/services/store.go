package services

import (
	"context"

	"apexdispatch/internal/models"
	"apexdispatch/internal/platforms"
)

// Store is the durable record of jobs and tasks. Lookups return nil, nil when nothing matches.
type Store interface {
	SaveJob(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error)
	GetJobByIDAndUser(ctx context.Context, id int64, userID string) (*models.ProcessingJob, error)
	GetJobsByUser(ctx context.Context, userID string, parentTaskID *int64) ([]models.ProcessingJob, error)
	UpdateJobStatus(ctx context.Context, id int64, status models.ProcessingStatus) error

	SaveTask(ctx context.Context, task *models.UpscalingTask) (*models.UpscalingTask, error)
	GetTaskByIDAndUser(ctx context.Context, id int64, userID string) (*models.UpscalingTask, error)
	GetTasksByUser(ctx context.Context, userID string) ([]models.UpscalingTask, error)
	UpdateTaskStatus(ctx context.Context, id int64, status models.ProcessingStatus) error
}

// PlatformResolver finds the platform serving a label.
type PlatformResolver interface {
	Get(label models.Label) (platforms.Platform, error)
}
