package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/metrics"
)

// WorkerPool manages a pool of queue workers plus the orphan-recovery scan.
type WorkerPool struct {
	podID    string
	store    Store
	cfg      *config.QueueConfig
	executor JobExecutor
	m        *metrics.Metrics
	logger   *slog.Logger
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Job cancel registry: job_id -> cancel function, for API-triggered
	// cancellation of jobs running on this pod.
	activeJobs map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	orphanMu         sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewWorkerPool creates a worker pool. m may be nil.
func NewWorkerPool(podID string, store Store, cfg *config.QueueConfig, executor JobExecutor, m *metrics.Metrics) *WorkerPool {
	return &WorkerPool{
		podID:      podID,
		store:      store,
		cfg:        cfg,
		executor:   executor,
		m:          m,
		logger:     slog.Default().With("component", "queue", "pod_id", podID),
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start recovers this pod's startup orphans, spawns the workers, and begins
// orphan detection. Duplicate calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		p.logger.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	recovered, err := p.store.RequeueStartupOrphans(ctx, p.podID)
	if err != nil {
		return fmt.Errorf("startup orphan recovery: %w", err)
	}
	if recovered > 0 {
		p.logger.Warn("Requeued jobs abandoned by previous run", "count", recovered)
	}

	p.logger.Info("Starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.store, p.cfg, p.executor, p, p.m)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	p.logger.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits. Workers finish their current
// jobs before exiting.
func (p *WorkerPool) Stop() {
	p.logger.Info("Stopping worker pool gracefully")

	active := p.activeJobIDs()
	if len(active) > 0 {
		p.logger.Info("Waiting for active jobs to complete",
			"count", len(active), "job_ids", active)
	}

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	p.logger.Info("Worker pool stopped gracefully")
}

// RegisterJob stores a cancel function for API-triggered cancellation.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob cancels an in-progress job running on this pod. Reports whether
// the job was found here.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeJobs[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the pool's health snapshot. DB errors mark the pool
// unhealthy: a pool that cannot reach its queue is not serving.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	queueDepth, errQ := p.store.QueueDepth(ctx)
	if errQ != nil {
		p.logger.Error("Failed to query queue depth for health check", "error", errQ)
	}
	activeJobs, errA := p.store.CountActive(ctx)
	if errA != nil {
		p.logger.Error("Failed to query active jobs for health check", "error", errA)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	dbHealthy := errQ == nil && errA == nil
	var dbError string
	if errQ != nil {
		dbError = fmt.Sprintf("queue depth query failed: %v", errQ)
	} else if errA != nil {
		dbError = fmt.Sprintf("active jobs query failed: %v", errA)
	}

	p.orphanMu.Lock()
	lastScan := p.lastOrphanScan
	recovered := p.orphansRecovered
	p.orphanMu.Unlock()

	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0 && dbHealthy,
		DBReachable:      dbHealthy,
		DBError:          dbError,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveJobs:       activeJobs,
		MaxConcurrent:    p.cfg.MaxConcurrentJobs,
		QueueDepth:       queueDepth,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}

// runOrphanDetection periodically requeues jobs with stale heartbeats. Every
// pod runs this independently; the store operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	interval := p.cfg.OrphanDetectionInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			staleBefore := time.Now().Add(-p.cfg.OrphanThreshold)
			recovered, err := p.store.RequeueOrphans(ctx, staleBefore)
			if err != nil {
				p.logger.Error("Orphan detection failed", "error", err)
				continue
			}
			if recovered > 0 {
				p.logger.Warn("Recovered orphaned jobs", "count", recovered)
			}
			p.orphanMu.Lock()
			p.lastOrphanScan = time.Now()
			p.orphansRecovered += recovered
			p.orphanMu.Unlock()
		}
	}
}

func (p *WorkerPool) activeJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}
