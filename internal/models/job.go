package models

import (
	"time"
)

type ProcessingJob struct {
	ID              int64            `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"-"`
	Title           string           `db:"title" json:"title"`
	Label           Label            `db:"label" json:"label"`
	Status          ProcessingStatus `db:"status" json:"status"`
	PlatformJobID   *string          `db:"platform_job_id" json:"platform_job_id"`
	Service         ServiceDetails   `db:"service" json:"service"`
	Parameters      Params           `db:"parameters" json:"parameters"`
	UpscalingTaskID *int64           `db:"upscaling_task_id" json:"upscaling_task_id,omitempty"`
	CreatedAt       time.Time        `db:"created" json:"created"`
	UpdatedAt       time.Time        `db:"updated" json:"updated"`
}

func (j *ProcessingJob) Summary() ProcessingJobSummary {
	return ProcessingJobSummary{ID: j.ID, Title: j.Title, Label: j.Label, Status: j.Status}
}

type ProcessingJobSummary struct {
	ID     int64            `json:"id"`
	Title  string           `json:"title"`
	Label  Label            `json:"label"`
	Status ProcessingStatus `json:"status"`
}

type UpscalingTask struct {
	ID        int64            `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"-"`
	Title     string           `db:"title" json:"title"`
	Label     Label            `db:"label" json:"label"`
	Status    ProcessingStatus `db:"status" json:"status"`
	Service   ServiceDetails   `db:"service" json:"service"`
	CreatedAt time.Time        `db:"created" json:"created"`
	UpdatedAt time.Time        `db:"updated" json:"updated"`
}

func (t *UpscalingTask) Summary() UpscalingTaskSummary {
	return UpscalingTaskSummary{ID: t.ID, Title: t.Title, Label: t.Label, Status: t.Status}
}

type UpscalingTaskSummary struct {
	ID     int64            `json:"id"`
	Title  string           `json:"title"`
	Label  Label            `json:"label"`
	Status ProcessingStatus `json:"status"`
}

// UpscalingTaskDetails is a task together with its child jobs.
type UpscalingTaskDetails struct {
	UpscalingTaskSummary
	Service   ServiceDetails         `json:"service"`
	CreatedAt time.Time              `json:"created"`
	UpdatedAt time.Time              `json:"updated"`
	Jobs      []ProcessingJobSummary `json:"jobs"`
}

type JobsStatus struct {
	UpscalingTasks []UpscalingTaskSummary `json:"upscaling_tasks"`
	ProcessingJobs []ProcessingJobSummary `json:"processing_jobs"`
}
