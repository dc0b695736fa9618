package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"apexdispatch/internal/models"
)

const taskColumns = `id, user_id, title, label, status, service, created, updated`

func (db *DB) SaveTask(ctx context.Context, task *models.UpscalingTask) (*models.UpscalingTask, error) {
	now := time.Now().UTC()
	saved := *task
	saved.CreatedAt = now
	saved.UpdatedAt = now

	err := db.QueryRowxContext(ctx, db.Rebind(`
		INSERT INTO upscaling_tasks (user_id, title, label, status, service, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), saved.UserID, saved.Title, saved.Label, saved.Status, saved.Service,
		saved.CreatedAt, saved.UpdatedAt).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("saving upscaling task: %w", err)
	}
	return &saved, nil
}

// GetTaskByIDAndUser returns nil when the user owns no task with that id.
func (db *DB) GetTaskByIDAndUser(ctx context.Context, id int64, userID string) (*models.UpscalingTask, error) {
	var task models.UpscalingTask
	err := db.GetContext(ctx, &task, db.Rebind(`SELECT `+taskColumns+`
		FROM upscaling_tasks WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading upscaling task %d: %w", id, err)
	}
	return &task, nil
}

func (db *DB) GetTasksByUser(ctx context.Context, userID string) ([]models.UpscalingTask, error) {
	tasks := []models.UpscalingTask{}
	err := db.SelectContext(ctx, &tasks, db.Rebind(`SELECT `+taskColumns+`
		FROM upscaling_tasks WHERE user_id = ? ORDER BY id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("listing upscaling tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status models.ProcessingStatus) error {
	_, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE upscaling_tasks SET status = ?, updated = ? WHERE id = ?
	`), status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating upscaling task %d: %w", id, err)
	}
	return nil
}

// ActiveTasks returns every task of any user that has not reached a terminal status.
func (db *DB) ActiveTasks(ctx context.Context) ([]models.UpscalingTask, error) {
	tasks := []models.UpscalingTask{}
	err := db.SelectContext(ctx, &tasks, db.Rebind(`SELECT `+taskColumns+`
		FROM upscaling_tasks WHERE status NOT IN (?, ?, ?) ORDER BY id`),
		models.StatusFinished, models.StatusFailed, models.StatusCanceled)
	if err != nil {
		return nil, fmt.Errorf("listing active upscaling tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) CountTasks(ctx context.Context) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM upscaling_tasks`); err != nil {
		return 0, err
	}
	return n, nil
}
