// Package scheduler runs the background status sweep over every active job and task.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"apexdispatch/internal/config"
	"apexdispatch/internal/logging"
	"apexdispatch/internal/models"
	"apexdispatch/internal/services"

	gocron "github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"
)

// ActiveLister lists the records a sweep must visit.
type ActiveLister interface {
	ActiveJobs(ctx context.Context) ([]models.ProcessingJob, error)
	ActiveTasks(ctx context.Context) ([]models.UpscalingTask, error)
}

// Sweep is the outcome of one reconcile pass.
type Sweep struct {
	Jobs   int
	Tasks  int
	Failed int
}

type Reconciler struct {
	store       ActiveLister
	processing  *services.ProcessingService
	upscaling   *services.UpscalingService
	token       string
	interval    time.Duration
	parallelism int

	scheduler gocron.Scheduler
}

func New(store ActiveLister, processing *services.ProcessingService, upscaling *services.UpscalingService, cfg config.Reconcile) *Reconciler {
	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	return &Reconciler{
		store:       store,
		processing:  processing,
		upscaling:   upscaling,
		token:       cfg.Token,
		interval:    cfg.Interval,
		parallelism: parallelism,
	}
}

// Start schedules a sweep every interval, the first one immediately. Overlapping runs are skipped.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %s", r.interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			sweep, err := r.Reconcile(ctx)
			log := logging.FromContext(ctx).WithField("jobs", sweep.Jobs).WithField("tasks", sweep.Tasks).WithField("failed", sweep.Failed)
			if err != nil {
				log.WithError(err).Error("Status reconcile failed")
				return
			}
			log.Debug("Status reconcile complete")
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("initializing gocron job: %w", err)
	}
	r.scheduler = s
	s.Start()
	logging.FromContext(ctx).WithField("interval", r.interval.String()).Info("Status reconciler started")
	return nil
}

// Stop waits for a running sweep to finish.
func (r *Reconciler) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}

// Reconcile refreshes every active unit job and task once. Children are refreshed through their task.
// A failing record is logged and does not stop the sweep.
func (r *Reconciler) Reconcile(ctx context.Context) (Sweep, error) {
	var sweep Sweep
	jobs, err := r.store.ActiveJobs(ctx)
	if err != nil {
		return sweep, fmt.Errorf("listing active jobs: %w", err)
	}
	tasks, err := r.store.ActiveTasks(ctx)
	if err != nil {
		return sweep, fmt.Errorf("listing active tasks: %w", err)
	}

	log := logging.FromContext(ctx)
	failures := make(chan struct{}, len(jobs)+len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	for i := range jobs {
		job := &jobs[i]
		if job.UpscalingTaskID != nil {
			continue
		}
		sweep.Jobs++
		g.Go(func() error {
			if _, err := r.processing.RefreshJobStatus(gctx, r.token, job); err != nil {
				log.WithError(err).WithField("job_id", job.ID).Warn("Could not reconcile job")
				failures <- struct{}{}
			}
			return nil
		})
	}
	for i := range tasks {
		task := &tasks[i]
		sweep.Tasks++
		g.Go(func() error {
			if _, err := r.upscaling.RefreshTask(gctx, r.token, task); err != nil {
				log.WithError(err).WithField("upscaling_task_id", task.ID).Warn("Could not reconcile task")
				failures <- struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failures)
	for range failures {
		sweep.Failed++
	}
	return sweep, ctx.Err()
}
