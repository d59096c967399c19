package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/infrastructure"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

// Runner executes one tool flow. *services.CalibrationService satisfies it.
type Runner interface {
	RunToolFlowWith(ctx context.Context, opts simulate.Options) (*services.Report, error)
}

// Queue manages async job execution
type Queue struct {
	mu       sync.Mutex
	ids      chan string
	workers  int
	wg       sync.WaitGroup
	store    Store
	runner   Runner
	logger   *slog.Logger
	shutdown chan struct{}
	stopOnce sync.Once
	// cancels holds the cancel function of every running job.
	cancels map[string]context.CancelFunc
}

// NewQueue creates a queue with the given number of workers that holds at
// most capacity pending jobs.
func NewQueue(workers, capacity int, store Store, runner Runner, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = workers * 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		ids:      make(chan string, capacity),
		workers:  workers,
		store:    store,
		runner:   runner,
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins processing jobs. Workers exit when ctx is cancelled or Stop
// is called.
func (q *Queue) Start(ctx context.Context) {
	q.logger.InfoContext(ctx, "starting job queue", slog.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop signals the workers and waits for running jobs to finish. Jobs still
// running after timeout are cancelled.
func (q *Queue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")
	q.stopOnce.Do(func() { close(q.shutdown) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.cancelRunning()
		<-done
		q.logger.Warn("job queue stop timeout exceeded; running jobs cancelled")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// RetainFinished removes finished jobs older than retention every interval
// until ctx is done. Only a *MemoryStore supports cleanup.
func (q *Queue) RetainFinished(ctx context.Context, retention, interval time.Duration) {
	ms, ok := q.store.(*MemoryStore)
	if !ok || retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case <-ticker.C:
			if n := ms.CleanupOld(retention); n > 0 {
				q.logger.Debug("removed finished jobs", slog.Int("count", n))
			}
		}
	}
}

// Submit stores a pending job for opts and hands it to the workers.
func (q *Queue) Submit(ctx context.Context, opts simulate.Options) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Message:   "Job queued",
		TraceID:   infrastructure.GetTraceID(ctx),
		CreatedAt: time.Now().UTC(),
		options:   opts,
	}

	if err := q.store.Create(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.ids <- job.ID:
		q.logger.InfoContext(ctx, "job enqueued", slog.String("job_id", job.ID))
		return job, nil
	default:
		job.Status = StatusFailed
		job.Error = apperrors.ErrQueueFull.Message
		job.CompletedAt = timePtr(time.Now().UTC())
		if err := q.store.Update(job); err != nil {
			q.logger.ErrorContext(ctx, "failed to update rejected job", slog.String("error", err.Error()))
		}
		return nil, apperrors.ErrQueueFull
	}
}

// Get retrieves a job by ID
func (q *Queue) Get(id string) (*Job, error) {
	return q.store.Get(id)
}

// List returns jobs matching the filter
func (q *Queue) List(filter Filter) ([]*Job, error) {
	return q.store.List(filter)
}

// Cancel stops a pending or running job. Finished jobs cannot be cancelled.
func (q *Queue) Cancel(id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.Get(id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case StatusPending:
		job.Status = StatusCancelled
		job.Message = "Job cancelled before start"
		job.CompletedAt = timePtr(time.Now().UTC())
		if err := q.store.Update(job); err != nil {
			return nil, err
		}
	case StatusRunning:
		// The worker records the cancelled status once the run returns
		if cancel, ok := q.cancels[id]; ok {
			cancel()
		}
		job.Message = "Cancellation requested"
	default:
		return nil, apperrors.Conflict(fmt.Sprintf("job %s cannot be cancelled (status: %s)", id, job.Status))
	}
	return job, nil
}

// Stats returns queue statistics
func (q *Queue) Stats() map[string]int {
	q.mu.Lock()
	running := len(q.cancels)
	q.mu.Unlock()

	return map[string]int{
		"workers":    q.workers,
		"queue_size": len(q.ids),
		"queue_cap":  cap(q.ids),
		"running":    running,
	}
}

func (q *Queue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case id := <-q.ids:
			q.process(ctx, id, logger.With(slog.String("job_id", id)))
		}
	}
}

// begin moves a pending job to running. It returns nil when the job was
// cancelled or removed while queued.
func (q *Queue) begin(ctx context.Context, id string) (*Job, context.Context, context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.Get(id)
	if err != nil || job.Status != StatusPending {
		return nil, nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if job.TraceID != "" {
		runCtx = infrastructure.WithTraceID(runCtx, job.TraceID)
	}

	job.Status = StatusRunning
	job.Message = "Job started"
	job.StartedAt = timePtr(time.Now().UTC())
	if err := q.store.Update(job); err != nil {
		cancel()
		return nil, nil, nil
	}
	q.cancels[id] = cancel
	return job, runCtx, cancel
}

func (q *Queue) process(ctx context.Context, id string, logger *slog.Logger) {
	job, runCtx, cancel := q.begin(ctx, id)
	if job == nil {
		logger.Debug("skipping job that is no longer pending")
		return
	}

	defer func() {
		q.mu.Lock()
		delete(q.cancels, id)
		q.mu.Unlock()
		cancel()
	}()

	logger.InfoContext(runCtx, "processing job started")
	report, err := q.run(runCtx, job)

	job.CompletedAt = timePtr(time.Now().UTC())
	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.Message = "Job completed successfully"
		job.Report = report
		logger.InfoContext(runCtx, "processing job completed")
	case errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
		job.Message = "Job cancelled"
		logger.InfoContext(runCtx, "processing job cancelled")
	default:
		job.Status = StatusFailed
		job.Message = "Job failed"
		job.Error = err.Error()
		logger.ErrorContext(runCtx, "job failed", slog.String("error", err.Error()))
	}

	if err := q.store.Update(job); err != nil {
		logger.Error("failed to update job", slog.String("error", err.Error()))
	}
}

// run executes the tool flow, converting a panic into an error.
func (q *Queue) run(ctx context.Context, job *Job) (report *services.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job processing panicked: %v", r)
		}
	}()
	return q.runner.RunToolFlowWith(ctx, job.options)
}

func (q *Queue) cancelRunning() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cancel := range q.cancels {
		cancel()
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
