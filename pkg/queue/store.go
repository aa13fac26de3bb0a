package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the watch_jobs table. The partial unique index enforces
// at-most-one live job per content item per workspace; terminal jobs do not
// block re-analysis.
const schema = `
CREATE TABLE IF NOT EXISTS watch_jobs (
	id            TEXT PRIMARY KEY,
	tenant        TEXT NOT NULL,
	workspace     TEXT NOT NULL,
	source_type   TEXT NOT NULL,
	external_id   TEXT NOT NULL,
	url           TEXT NOT NULL,
	depth         TEXT NOT NULL DEFAULT 'standard',
	priority      INT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	pod_id        TEXT,
	attempts      INT NOT NULL DEFAULT 0,
	error         TEXT,
	result        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	heartbeat_at  TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS watch_jobs_live_dedup
	ON watch_jobs (tenant, workspace, source_type, external_id)
	WHERE status IN ('pending', 'in_progress');
CREATE INDEX IF NOT EXISTS watch_jobs_claim
	ON watch_jobs (status, priority DESC, created_at);
`

const jobColumns = `id, tenant, workspace, source_type, external_id, url, depth,
	priority, status, COALESCE(pod_id, ''), attempts, COALESCE(error, ''), result,
	created_at, started_at, heartbeat_at, completed_at`

// PGStore is the Postgres-backed job store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a connection pool and ensures the schema exists.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Tenant, &j.Workspace, &j.SourceType, &j.ExternalID,
		&j.URL, &j.Depth, &j.Priority, &j.Status, &j.PodID, &j.Attempts, &j.Error,
		&j.Result, &j.CreatedAt, &j.StartedAt, &j.HeartbeatAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Enqueue inserts the job, deduplicating against live jobs for the same
// content. On conflict the existing live job is returned unchanged.
func (s *PGStore) Enqueue(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Depth == "" {
		job.Depth = "standard"
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO watch_jobs (id, tenant, workspace, source_type, external_id, url, depth, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		ON CONFLICT (tenant, workspace, source_type, external_id)
			WHERE status IN ('pending', 'in_progress')
		DO NOTHING`,
		job.ID, job.Tenant, job.Workspace, job.SourceType, job.ExternalID, job.URL, job.Depth, job.Priority)
	if err != nil {
		return nil, false, err
	}

	if tag.RowsAffected() == 0 {
		existing, err := scanJob(s.pool.QueryRow(ctx, `
			SELECT `+jobColumns+` FROM watch_jobs
			WHERE tenant = $1 AND workspace = $2 AND source_type = $3 AND external_id = $4
			  AND status IN ('pending', 'in_progress')
			LIMIT 1`,
			job.Tenant, job.Workspace, job.SourceType, job.ExternalID))
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	stored, err := s.Get(ctx, job.ID)
	return stored, true, err
}

// ClaimNext claims the highest-priority, then oldest, pending job with
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
func (s *PGStore) ClaimNext(ctx context.Context, podID string) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM watch_jobs
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`))
	if errors.Is(err, ErrJobNotFound) {
		return nil, ErrNoJobs
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE watch_jobs
		SET status = 'in_progress', pod_id = $2, attempts = attempts + 1,
		    started_at = $3, heartbeat_at = $3
		WHERE id = $1`,
		job.ID, podID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	job.Status = StatusInProgress
	job.PodID = podID
	job.Attempts++
	job.StartedAt = &now
	job.HeartbeatAt = &now
	return job, nil
}

// Heartbeat refreshes the liveness timestamp for orphan detection.
func (s *PGStore) Heartbeat(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE watch_jobs SET heartbeat_at = now() WHERE id = $1 AND status = 'in_progress'`,
		jobID)
	return err
}

// Finish writes the terminal state.
func (s *PGStore) Finish(ctx context.Context, jobID string, status Status, errMsg string, result []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE watch_jobs
		SET status = $2, error = NULLIF($3, ''), result = $4, completed_at = now()
		WHERE id = $1`,
		jobID, status, errMsg, result)
	return err
}

// Get returns one job by id.
func (s *PGStore) Get(ctx context.Context, jobID string) (*Job, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM watch_jobs WHERE id = $1`, jobID))
}

// CancelPending cancels a job that has not been claimed yet.
func (s *PGStore) CancelPending(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE watch_jobs SET status = 'cancelled', completed_at = now()
		WHERE id = $1 AND status = 'pending'`,
		jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrNotCancellable
	}
	return nil
}

// CountActive counts in-progress jobs across all replicas.
func (s *PGStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM watch_jobs WHERE status = 'in_progress'`).Scan(&n)
	return n, err
}

// QueueDepth counts pending jobs.
func (s *PGStore) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM watch_jobs WHERE status = 'pending'`).Scan(&n)
	return n, err
}

// RequeueOrphans returns stale in-progress jobs to pending for another
// attempt, or fails them once the attempt cap is spent. Idempotent; every
// replica runs it.
func (s *PGStore) RequeueOrphans(ctx context.Context, staleBefore time.Time) (int, error) {
	requeued, err := s.pool.Exec(ctx, `
		UPDATE watch_jobs
		SET status = 'pending', pod_id = NULL, started_at = NULL, heartbeat_at = NULL
		WHERE status = 'in_progress' AND heartbeat_at < $1 AND attempts < $2`,
		staleBefore, maxAttempts)
	if err != nil {
		return 0, err
	}

	failed, err := s.pool.Exec(ctx, `
		UPDATE watch_jobs
		SET status = 'failed', completed_at = now(),
		    error = 'orphaned: no heartbeat since ' || heartbeat_at::text
		WHERE status = 'in_progress' AND heartbeat_at < $1 AND attempts >= $2`,
		staleBefore, maxAttempts)
	if err != nil {
		return 0, err
	}

	return int(requeued.RowsAffected() + failed.RowsAffected()), nil
}

// RequeueStartupOrphans recovers jobs left in_progress by a previous crash of
// this pod. Called once before the pool starts polling.
func (s *PGStore) RequeueStartupOrphans(ctx context.Context, podID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE watch_jobs
		SET status = 'pending', pod_id = NULL, started_at = NULL, heartbeat_at = NULL
		WHERE status = 'in_progress' AND pod_id = $1`,
		podID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
