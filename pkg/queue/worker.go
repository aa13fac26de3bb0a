package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/metrics"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// JobRegistry is the subset of WorkerPool a Worker uses for cancellation
// registration.
type JobRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// Worker is a single queue worker that polls for and processes jobs.
type Worker struct {
	id       string
	podID    string
	store    Store
	cfg      *config.QueueConfig
	executor JobExecutor
	pool     JobRegistry
	m        *metrics.Metrics
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a queue worker. m may be nil.
func NewWorker(id, podID string, store Store, cfg *config.QueueConfig, executor JobExecutor, pool JobRegistry, m *metrics.Metrics) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        store,
		cfg:          cfg,
		executor:     executor,
		pool:         pool,
		m:            m,
		logger:       slog.Default().With("component", "queue", "worker_id", id),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current job to finish.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("Worker started", "pod_id", w.podID)

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("Worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobs) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				w.logger.Error("Error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for d or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a job, and drives it to a terminal
// status.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// Global capacity check. Best-effort: racy with concurrent workers but
	// bounded by WorkerCount and mitigated by poll jitter.
	active, err := w.store.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("checking active jobs: %w", err)
	}
	if w.cfg.MaxConcurrentJobs > 0 && active >= w.cfg.MaxConcurrentJobs {
		return ErrAtCapacity
	}

	job, err := w.store.ClaimNext(ctx, w.podID)
	if err != nil {
		return err
	}

	log := w.logger.With("job_id", job.ID, "tenant", job.Tenant)
	log.Info("Job claimed", "url", job.URL, "depth", job.Depth)
	if w.m != nil {
		w.m.QueueJobs.WithLabelValues("claimed").Inc()
	}

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancelJob := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancelJob()

	w.pool.RegisterJob(job.ID, cancelJob)
	defer w.pool.UnregisterJob(job.ID)

	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	go w.runHeartbeat(heartbeatCtx, job.ID)

	result := w.executor.Execute(jobCtx, job)
	stopHeartbeat()

	if result == nil {
		result = w.synthesizeResult(jobCtx)
	}
	if result.Status == "" {
		switch {
		case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
			result.Status = StatusTimedOut
		case errors.Is(jobCtx.Err(), context.Canceled):
			result.Status = StatusCancelled
		default:
			result.Status = StatusFailed
		}
	}

	var errMsg string
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	// Terminal write uses a fresh context: the job context may be dead.
	if err := w.store.Finish(context.Background(), job.ID, result.Status, errMsg, result.Result); err != nil {
		log.Error("Failed to write terminal job status", "error", err)
		return err
	}
	if w.m != nil {
		w.m.QueueJobs.WithLabelValues(string(result.Status)).Inc()
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("Job complete", "status", string(result.Status))
	return nil
}

// synthesizeResult covers an executor that returned nil.
func (w *Worker) synthesizeResult(jobCtx context.Context) *ExecutionResult {
	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{
			Status: StatusTimedOut,
			Err:    fmt.Errorf("job timed out after %v", w.cfg.JobTimeout),
		}
	case errors.Is(jobCtx.Err(), context.Canceled):
		return &ExecutionResult{Status: StatusCancelled, Err: context.Canceled}
	default:
		return &ExecutionResult{
			Status: StatusFailed,
			Err:    errors.New("executor returned nil result"),
		}
	}
}

// runHeartbeat refreshes heartbeat_at until the job finishes.
func (w *Worker) runHeartbeat(ctx context.Context, jobID string) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Heartbeat update failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter, range [base-j, base+j].
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int63n(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
