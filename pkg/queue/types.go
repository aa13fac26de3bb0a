// Package queue provides the persistent watch-job queue and its worker pool.
// Jobs live in Postgres; claiming uses FOR UPDATE SKIP LOCKED so any number of
// replicas can poll the same table safely.
package queue

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobs indicates no pending jobs are in the queue.
	ErrNoJobs = errors.New("no jobs available")

	// ErrAtCapacity indicates the global concurrent job limit has been reached.
	ErrAtCapacity = errors.New("at capacity")

	// ErrJobNotFound indicates the job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotCancellable indicates the job is already in a terminal state.
	ErrNotCancellable = errors.New("job is not cancellable")
)

// Status is a job lifecycle state.
type Status string

// Job statuses. pending and in_progress are live; the rest are terminal.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimedOut   Status = "timed_out"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// maxAttempts bounds orphan requeues before a job is failed outright.
const maxAttempts = 3

// Job is one queued analysis request.
type Job struct {
	ID         string
	Tenant     string
	Workspace  string
	SourceType string // "watch" for subscription-discovered content, "api" for direct requests
	ExternalID string // platform-native content id, used for dedup
	URL        string
	Depth      string
	Priority   int // higher claims first; ties break oldest-first
	Status     Status
	PodID      string
	Attempts   int
	Error      string
	Result     []byte // terminal pipeline envelope, JSON

	CreatedAt   time.Time
	StartedAt   *time.Time
	HeartbeatAt *time.Time
	CompletedAt *time.Time
}

// ExecutionResult is the terminal state a JobExecutor hands back to the worker.
type ExecutionResult struct {
	Status Status
	Result []byte
	Err    error
}

// JobExecutor processes one claimed job. The worker owns claiming, heartbeat,
// terminal status, and cancellation plumbing; the executor owns everything
// in between.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) *ExecutionResult
}

// Store is the persistence contract for the job queue.
type Store interface {
	// Enqueue inserts a job. When a live job with the same
	// (tenant, workspace, source_type, external_id) exists, the existing job
	// is returned and created reports false.
	Enqueue(ctx context.Context, job *Job) (stored *Job, created bool, err error)

	// ClaimNext atomically claims the highest-priority, then oldest, pending
	// job for podID. Returns ErrNoJobs when the queue is empty.
	ClaimNext(ctx context.Context, podID string) (*Job, error)

	// Heartbeat refreshes the claimed job's liveness timestamp.
	Heartbeat(ctx context.Context, jobID string) error

	// Finish writes a terminal status, error message, and result payload.
	Finish(ctx context.Context, jobID string, status Status, errMsg string, result []byte) error

	// Get returns a job by id, or ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*Job, error)

	// CancelPending moves a pending job to cancelled. In-progress jobs are
	// cancelled through the pool's context registry instead.
	CancelPending(ctx context.Context, jobID string) error

	// CountActive returns the number of in-progress jobs across all replicas.
	CountActive(ctx context.Context) (int, error)

	// QueueDepth returns the number of pending jobs.
	QueueDepth(ctx context.Context) (int, error)

	// RequeueOrphans returns stale in-progress jobs to pending (or fails them
	// past the attempt cap) and reports how many were touched.
	RequeueOrphans(ctx context.Context, staleBefore time.Time) (int, error)

	// RequeueStartupOrphans recovers jobs this pod abandoned in a crash.
	RequeueStartupOrphans(ctx context.Context, podID string) (int, error)
}

// PoolHealth is the worker pool's health snapshot.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveJobs       int            `json:"active_jobs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
