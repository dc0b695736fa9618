// Package servicestest provides in-memory collaborators for exercising the services and their callers.
package servicestest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"apexdispatch/internal/models"
)

// MemStore is a goroutine safe in-memory job store. Jobs and tasks share one id sequence.
type MemStore struct {
	mu          sync.Mutex
	nextID      int64
	jobs        map[int64]models.ProcessingJob
	tasks       map[int64]models.UpscalingTask
	jobUpdates  int
	taskUpdates int
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: map[int64]models.ProcessingJob{}, tasks: map[int64]models.UpscalingTask{}}
}

func (m *MemStore) SaveJob(_ context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	saved := *job
	saved.ID = m.nextID
	m.jobs[saved.ID] = saved
	return &saved, nil
}

func (m *MemStore) GetJobByIDAndUser(_ context.Context, id int64, userID string) (*models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.UserID == userID {
		return &j, nil
	}
	return nil, nil
}

func (m *MemStore) GetJobsByUser(_ context.Context, userID string, parentTaskID *int64) ([]models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range m.jobs {
		if j.UserID != userID {
			continue
		}
		switch {
		case parentTaskID == nil && j.UpscalingTaskID == nil:
		case parentTaskID != nil && j.UpscalingTaskID != nil && *j.UpscalingTaskID == *parentTaskID:
		default:
			continue
		}
		out = append(out, j)
	}
	sortJobs(out)
	return out, nil
}

func (m *MemStore) UpdateJobStatus(_ context.Context, id int64, status models.ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %d not found", id)
	}
	j.Status = status
	m.jobs[id] = j
	m.jobUpdates++
	return nil
}

func (m *MemStore) SaveTask(_ context.Context, task *models.UpscalingTask) (*models.UpscalingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	saved := *task
	saved.ID = m.nextID
	m.tasks[saved.ID] = saved
	return &saved, nil
}

func (m *MemStore) GetTaskByIDAndUser(_ context.Context, id int64, userID string) (*models.UpscalingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && t.UserID == userID {
		return &t, nil
	}
	return nil, nil
}

func (m *MemStore) GetTasksByUser(_ context.Context, userID string) ([]models.UpscalingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UpscalingTask
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *MemStore) UpdateTaskStatus(_ context.Context, id int64, status models.ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d not found", id)
	}
	t.Status = status
	m.tasks[id] = t
	m.taskUpdates++
	return nil
}

// ActiveJobs returns every non-terminal job that reached a platform.
func (m *MemStore) ActiveJobs(context.Context) ([]models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range m.jobs {
		if !j.Status.IsTerminal() && j.PlatformJobID != nil {
			out = append(out, j)
		}
	}
	sortJobs(out)
	return out, nil
}

func (m *MemStore) ActiveTasks(context.Context) ([]models.UpscalingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UpscalingTask
	for _, t := range m.tasks {
		if !t.Status.IsTerminal() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// Job returns a copy of the stored job, or the zero value.
func (m *MemStore) Job(id int64) models.ProcessingJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *MemStore) Task(id int64) models.UpscalingTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

// Children returns the jobs of taskID regardless of owner, ordered by id.
func (m *MemStore) Children(taskID int64) []models.ProcessingJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range m.jobs {
		if j.UpscalingTaskID != nil && *j.UpscalingTaskID == taskID {
			out = append(out, j)
		}
	}
	sortJobs(out)
	return out
}

// Counts reports how many jobs and tasks are stored.
func (m *MemStore) Counts() (jobs, tasks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), len(m.tasks)
}

// Updates reports how many status writes happened.
func (m *MemStore) Updates() (jobs, tasks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobUpdates, m.taskUpdates
}

func sortJobs(jobs []models.ProcessingJob) {
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })
}
