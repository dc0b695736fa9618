package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/audit"
	"apexdispatch/internal/logging"
	"apexdispatch/internal/models"
	"apexdispatch/internal/platforms"
)

type UpscalingService struct {
	store      Store
	processing *ProcessingService
	platforms  PlatformResolver

	wg sync.WaitGroup

	// tasks whose children are still being created
	mu       sync.Mutex
	creating map[int64]int
}

func NewUpscalingService(store Store, processing *ProcessingService, resolver PlatformResolver) *UpscalingService {
	return &UpscalingService{
		store:      store,
		processing: processing,
		platforms:  resolver,
		creating:   make(map[int64]int),
	}
}

func (u *UpscalingService) beginCreating(taskID int64) {
	u.mu.Lock()
	u.creating[taskID]++
	u.mu.Unlock()
}

func (u *UpscalingService) endCreating(taskID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.creating[taskID] <= 1 {
		delete(u.creating, taskID)
		return
	}
	u.creating[taskID]--
}

// Creating reports whether child jobs of the task are still being created.
func (u *UpscalingService) Creating(taskID int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.creating[taskID] > 0
}

// CreateTask records a new task. Child jobs are created separately by ScheduleTaskJobs or CreateTaskJobs.
func (u *UpscalingService) CreateTask(ctx context.Context, userID string, req models.UpscalingTaskRequest) (*models.UpscalingTask, error) {
	if req.Dimension == nil || req.Dimension.Name == "" || len(req.Dimension.Values) == 0 {
		return nil, apierr.Validation([]string{"dimension with a name and at least one value is required"})
	}
	if _, err := u.platforms.Get(req.Label); err != nil {
		return nil, err
	}

	task, err := u.store.SaveTask(ctx, &models.UpscalingTask{
		UserID:  userID,
		Title:   req.Title,
		Label:   req.Label,
		Status:  models.StatusCreated,
		Service: req.Service,
	})
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.EventTaskCreated, userID, task.ID, map[string]interface{}{
		"label":     task.Label,
		"dimension": req.Dimension.Name,
		"jobs":      len(req.Dimension.Values),
	})
	return task, nil
}

// ChildRequests expands the task request into one job request per dimension value, in order.
func ChildRequests(task *models.UpscalingTask, req models.UpscalingTaskRequest) []models.BaseJobRequest {
	out := make([]models.BaseJobRequest, 0, len(req.Dimension.Values))
	for i, v := range req.Dimension.Values {
		out = append(out, models.BaseJobRequest{
			Title:      fmt.Sprintf("%s - Processing Job %d", task.Title, i+1),
			Label:      task.Label,
			Service:    task.Service,
			Parameters: req.Parameters.With(req.Dimension.Name, v),
			Format:     req.Format,
		})
	}
	return out
}

// CreateTaskJobs creates every child job of task. A failing child never stops its siblings.
func (u *UpscalingService) CreateTaskJobs(ctx context.Context, token, userID string, task *models.UpscalingTask, req models.UpscalingTaskRequest) []models.ProcessingJobSummary {
	u.beginCreating(task.ID)
	defer u.endCreating(task.ID)

	log := logging.FromContext(ctx).WithField("upscaling_task_id", task.ID)
	var created []models.ProcessingJobSummary
	for i, child := range ChildRequests(task, req) {
		summary, err := u.processing.CreateJob(ctx, token, userID, child, &task.ID)
		if err != nil {
			log.WithError(err).WithField("index", i).Error("Could not create child job")
			continue
		}
		created = append(created, *summary)
	}
	log.WithField("jobs", len(created)).Info("Upscaling task jobs created")
	return created
}

// ScheduleTaskJobs creates the child jobs in the background. The work outlives ctx cancellation.
func (u *UpscalingService) ScheduleTaskJobs(ctx context.Context, token, userID string, task *models.UpscalingTask, req models.UpscalingTaskRequest) {
	ctx = context.WithoutCancel(ctx)
	u.beginCreating(task.ID)
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer u.endCreating(task.ID)
		defer func() {
			if r := recover(); r != nil {
				logging.FromContext(ctx).WithField("upscaling_task_id", task.ID).
					WithField("panic", r).Error("Child job creation panicked")
			}
		}()
		u.CreateTaskJobs(ctx, token, userID, task, req)
	}()
}

// Wait blocks until background job creation has finished.
func (u *UpscalingService) Wait() {
	u.wg.Wait()
}

// UpscaleStatus derives the status of a task from the statuses of its children.
func UpscaleStatus(children []models.ProcessingStatus) models.ProcessingStatus {
	if len(children) == 0 {
		return models.StatusCreated
	}
	present := make(map[models.ProcessingStatus]bool, len(children))
	for _, s := range children {
		present[s] = true
	}
	only := func(allowed ...models.ProcessingStatus) bool {
		n := 0
		for _, s := range allowed {
			if present[s] {
				n++
			}
		}
		return n == len(present)
	}

	switch {
	case present[models.StatusRunning]:
		return models.StatusRunning
	case only(models.StatusFailed):
		return models.StatusFailed
	case only(models.StatusCanceled):
		return models.StatusCanceled
	case only(models.StatusFinished, models.StatusFailed):
		return models.StatusFinished
	}
	return models.StatusCreated
}

// refreshTaskStatus applies the derived status to task and stores it when it changed.
// A terminal status is never derived while children are still being created.
func (u *UpscalingService) refreshTaskStatus(ctx context.Context, task *models.UpscalingTask, jobs []models.ProcessingJobSummary) error {
	statuses := make([]models.ProcessingStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status
	}
	status := UpscaleStatus(statuses)
	if status == task.Status {
		return nil
	}
	if status.IsTerminal() && u.Creating(task.ID) {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"upscaling_task_id": task.ID,
			"derived_status":    status,
		}).Debug("Deferring task status until child creation completes")
		return nil
	}
	if err := u.store.UpdateTaskStatus(ctx, task.ID, status); err != nil {
		return err
	}
	audit.Log(ctx, audit.EventTaskStatusChanged, task.UserID, task.ID, map[string]interface{}{
		"from": task.Status,
		"to":   status,
	})
	task.Status = status
	return nil
}

// RefreshTask refreshes the children of task and then the task itself.
func (u *UpscalingService) RefreshTask(ctx context.Context, token string, task *models.UpscalingTask) ([]models.ProcessingJobSummary, error) {
	jobs, err := u.processing.ListJobs(ctx, token, task.UserID, &task.ID)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		if err := u.refreshTaskStatus(ctx, task, jobs); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// GetTask returns the task with its children, or nil when the user owns no such task.
func (u *UpscalingService) GetTask(ctx context.Context, token, userID string, id int64) (*models.UpscalingTaskDetails, error) {
	task, err := u.store.GetTaskByIDAndUser(ctx, id, userID)
	if err != nil || task == nil {
		return nil, err
	}
	jobs, err := u.RefreshTask(ctx, token, task)
	if err != nil {
		return nil, err
	}
	return &models.UpscalingTaskDetails{
		UpscalingTaskSummary: task.Summary(),
		Service:              task.Service,
		CreatedAt:            task.CreatedAt,
		UpdatedAt:            task.UpdatedAt,
		Jobs:                 jobs,
	}, nil
}

func (u *UpscalingService) ListTasks(ctx context.Context, token, userID string) ([]models.UpscalingTaskSummary, error) {
	tasks, err := u.store.GetTasksByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.UpscalingTaskSummary, 0, len(tasks))
	for i := range tasks {
		task := &tasks[i]
		if _, err := u.RefreshTask(ctx, token, task); err != nil {
			return nil, err
		}
		summaries = append(summaries, task.Summary())
	}
	return summaries, nil
}

// IsNotFound reports whether err means a record does not exist for the caller.
func IsNotFound(err error) bool {
	e, ok := apierr.As(err)
	return ok && e.Status == http.StatusNotFound
}

// IsTransient reports whether err is a remote failure worth retrying on the next poll.
func IsTransient(err error) bool {
	var perr *platforms.Error
	return errors.As(err, &perr) || errors.Is(err, context.DeadlineExceeded)
}
