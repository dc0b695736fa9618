package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"apexdispatch/internal/models"
)

const jobColumns = `id, user_id, title, label, status, platform_job_id, service, parameters,
	upscaling_task_id, created, updated`

// SaveJob inserts job and returns it with its id and timestamps set.
func (db *DB) SaveJob(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error) {
	now := time.Now().UTC()
	saved := *job
	saved.CreatedAt = now
	saved.UpdatedAt = now

	err := db.QueryRowxContext(ctx, db.Rebind(`
		INSERT INTO processing_jobs (user_id, title, label, status, platform_job_id, service, parameters,
			upscaling_task_id, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), saved.UserID, saved.Title, saved.Label, saved.Status, saved.PlatformJobID, saved.Service,
		saved.Parameters, saved.UpscalingTaskID, saved.CreatedAt, saved.UpdatedAt).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("saving processing job: %w", err)
	}
	return &saved, nil
}

// GetJobByIDAndUser returns nil when the user owns no job with that id.
func (db *DB) GetJobByIDAndUser(ctx context.Context, id int64, userID string) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	err := db.GetContext(ctx, &job, db.Rebind(`SELECT `+jobColumns+`
		FROM processing_jobs WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading processing job %d: %w", id, err)
	}
	return &job, nil
}

// GetJobsByUser lists the user's unit jobs, or the children of parentTaskID when it is set.
func (db *DB) GetJobsByUser(ctx context.Context, userID string, parentTaskID *int64) ([]models.ProcessingJob, error) {
	jobs := []models.ProcessingJob{}
	var err error
	if parentTaskID == nil {
		err = db.SelectContext(ctx, &jobs, db.Rebind(`SELECT `+jobColumns+`
			FROM processing_jobs WHERE user_id = ? AND upscaling_task_id IS NULL
			ORDER BY id DESC`), userID)
	} else {
		err = db.SelectContext(ctx, &jobs, db.Rebind(`SELECT `+jobColumns+`
			FROM processing_jobs WHERE user_id = ? AND upscaling_task_id = ?
			ORDER BY id`), userID, *parentTaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing processing jobs: %w", err)
	}
	return jobs, nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id int64, status models.ProcessingStatus) error {
	_, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE processing_jobs SET status = ?, updated = ? WHERE id = ?
	`), status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating processing job %d: %w", id, err)
	}
	return nil
}

// ActiveJobs returns every job of any user that has not reached a terminal status.
func (db *DB) ActiveJobs(ctx context.Context) ([]models.ProcessingJob, error) {
	jobs := []models.ProcessingJob{}
	err := db.SelectContext(ctx, &jobs, db.Rebind(`SELECT `+jobColumns+`
		FROM processing_jobs WHERE status NOT IN (?, ?, ?) AND platform_job_id IS NOT NULL
		ORDER BY id`), models.StatusFinished, models.StatusFailed, models.StatusCanceled)
	if err != nil {
		return nil, fmt.Errorf("listing active processing jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of stored jobs.
func (db *DB) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM processing_jobs`); err != nil {
		return 0, err
	}
	return n, nil
}
