package database_test

import (
	"testing"

	"apexdispatch/internal/database"
	"apexdispatch/internal/models"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// runStoreSuite exercises the job store contract against a migrated database.
func runStoreSuite(t *testing.T, db *database.DB) {
	ctx := t.Context()
	service := models.ServiceDetails{Endpoint: "https://openeo.example.org", Application: "https://udp.example.org/ndvi.json"}

	task, err := db.SaveTask(ctx, &models.UpscalingTask{
		UserID:  "alice",
		Title:   "Belgium NDVI",
		Label:   models.LabelOpenEO,
		Status:  models.StatusCreated,
		Service: service,
	})
	require.NoError(t, err)
	require.NotZero(t, task.ID)
	require.False(t, task.CreatedAt.IsZero())

	unit, err := db.SaveJob(ctx, &models.ProcessingJob{
		UserID:        "alice",
		Title:         "single run",
		Label:         models.LabelOpenEO,
		Status:        models.StatusCreated,
		PlatformJobID: ptr("j-unit"),
		Service:       service,
		Parameters:    models.Params{"temporal_extent": []any{"2025-05-01", "2025-05-31"}},
	})
	require.NoError(t, err)

	for i, platformID := range []*string{ptr("j-1"), nil} {
		status := models.StatusCreated
		if platformID == nil {
			status = models.StatusFailed
		}
		_, err := db.SaveJob(ctx, &models.ProcessingJob{
			UserID:          "alice",
			Title:           "child",
			Label:           models.LabelOpenEO,
			Status:          status,
			PlatformJobID:   platformID,
			Service:         service,
			Parameters:      models.Params{"tile": float64(i)},
			UpscalingTaskID: ptr(task.ID),
		})
		require.NoError(t, err)
	}

	t.Run("get job scoped by owner", func(t *testing.T) {
		got, err := db.GetJobByIDAndUser(ctx, unit.ID, "alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "j-unit", *got.PlatformJobID)
		require.Equal(t, service, got.Service)
		require.Equal(t, []any{"2025-05-01", "2025-05-31"}, got.Parameters["temporal_extent"])
		require.Nil(t, got.UpscalingTaskID)

		missing, err := db.GetJobByIDAndUser(ctx, unit.ID, "mallory")
		require.NoError(t, err)
		require.Nil(t, missing)
	})

	t.Run("unit jobs exclude children", func(t *testing.T) {
		jobs, err := db.GetJobsByUser(ctx, "alice", nil)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.Equal(t, unit.ID, jobs[0].ID)
	})

	t.Run("children in creation order", func(t *testing.T) {
		jobs, err := db.GetJobsByUser(ctx, "alice", &task.ID)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		require.Equal(t, float64(0), jobs[0].Parameters["tile"])
		require.Equal(t, models.StatusFailed, jobs[1].Status)
		require.Nil(t, jobs[1].PlatformJobID)
	})

	t.Run("update job status", func(t *testing.T) {
		require.NoError(t, db.UpdateJobStatus(ctx, unit.ID, models.StatusRunning))
		got, err := db.GetJobByIDAndUser(ctx, unit.ID, "alice")
		require.NoError(t, err)
		require.Equal(t, models.StatusRunning, got.Status)
		require.False(t, got.UpdatedAt.Before(got.CreatedAt))
	})

	t.Run("active jobs skip terminal and undispatched", func(t *testing.T) {
		active, err := db.ActiveJobs(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		for _, j := range active {
			require.NotNil(t, j.PlatformJobID)
			require.False(t, j.Status.IsTerminal())
		}
	})

	t.Run("tasks", func(t *testing.T) {
		got, err := db.GetTaskByIDAndUser(ctx, task.ID, "alice")
		require.NoError(t, err)
		require.Equal(t, "Belgium NDVI", got.Title)
		require.Equal(t, service, got.Service)

		missing, err := db.GetTaskByIDAndUser(ctx, task.ID+1000, "alice")
		require.NoError(t, err)
		require.Nil(t, missing)

		require.NoError(t, db.UpdateTaskStatus(ctx, task.ID, models.StatusFinished))
		tasks, err := db.GetTasksByUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		require.Equal(t, models.StatusFinished, tasks[0].Status)

		active, err := db.ActiveTasks(ctx)
		require.NoError(t, err)
		require.Empty(t, active)

		none, err := db.GetTasksByUser(ctx, "bob")
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("counts", func(t *testing.T) {
		n, err := db.CountJobs(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)
		n, err = db.CountTasks(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})
}
