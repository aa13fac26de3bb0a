package queue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/step"
)

// fakeStore is an in-memory Store for worker and pool tests.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  int

	activeOverride  int
	requeueCalls    int
	startupRecovers int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*Job)}
}

func (f *fakeStore) add(job *Job) *Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if job.ID == "" {
		job.ID = "job-" + string(rune('a'+f.seq-1))
	}
	job.Status = StatusPending
	job.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Millisecond)
	f.jobs[job.ID] = job
	return job
}

func (f *fakeStore) Enqueue(_ context.Context, job *Job) (*Job, bool, error) {
	f.mu.Lock()
	for _, existing := range f.jobs {
		if !existing.Status.Terminal() &&
			existing.Tenant == job.Tenant && existing.Workspace == job.Workspace &&
			existing.SourceType == job.SourceType && existing.ExternalID == job.ExternalID {
			f.mu.Unlock()
			return existing, false, nil
		}
	}
	f.mu.Unlock()
	return f.add(job), true, nil
}

func (f *fakeStore) ClaimNext(_ context.Context, podID string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending []*Job
	for _, j := range f.jobs {
		if j.Status == StatusPending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNoJobs
	}
	// Highest priority first, oldest first within a priority, as the SQL
	// store orders its claim.
	sort.Slice(pending, func(i, k int) bool {
		if pending[i].Priority != pending[k].Priority {
			return pending[i].Priority > pending[k].Priority
		}
		return pending[i].CreatedAt.Before(pending[k].CreatedAt)
	})

	j := pending[0]
	now := time.Now()
	j.Status = StatusInProgress
	j.PodID = podID
	j.Attempts++
	j.StartedAt = &now
	j.HeartbeatAt = &now
	claimed := *j
	return &claimed, nil
}

func (f *fakeStore) Heartbeat(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		now := time.Now()
		j.HeartbeatAt = &now
	}
	return nil
}

func (f *fakeStore) Finish(_ context.Context, jobID string, status Status, errMsg string, result []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now()
	j.Status = status
	j.Error = errMsg
	j.Result = result
	j.CompletedAt = &now
	return nil
}

func (f *fakeStore) Get(_ context.Context, jobID string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	found := *j
	return &found, nil
}

func (f *fakeStore) CancelPending(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusPending {
		return ErrNotCancellable
	}
	j.Status = StatusCancelled
	return nil
}

func (f *fakeStore) CountActive(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeOverride > 0 {
		return f.activeOverride, nil
	}
	n := 0
	for _, j := range f.jobs {
		if j.Status == StatusInProgress {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) QueueDepth(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) RequeueOrphans(_ context.Context, staleBefore time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeueCalls++
	n := 0
	for _, j := range f.jobs {
		if j.Status == StatusInProgress && j.HeartbeatAt != nil && j.HeartbeatAt.Before(staleBefore) {
			if j.Attempts < maxAttempts {
				j.Status = StatusPending
				j.PodID = ""
				j.HeartbeatAt = nil
			} else {
				j.Status = StatusFailed
				j.Error = "orphaned"
			}
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) RequeueStartupOrphans(_ context.Context, podID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Status == StatusInProgress && j.PodID == podID {
			j.Status = StatusPending
			j.PodID = ""
			n++
		}
	}
	f.startupRecovers += n
	return n, nil
}

type funcExecutor func(ctx context.Context, job *Job) *ExecutionResult

func (f funcExecutor) Execute(ctx context.Context, job *Job) *ExecutionResult {
	return f(ctx, job)
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             1,
		MaxConcurrentJobs:       4,
		PollInterval:            5 * time.Millisecond,
		HeartbeatInterval:       5 * time.Millisecond,
		JobTimeout:              time.Second,
		OrphanDetectionInterval: 10 * time.Millisecond,
		OrphanThreshold:         time.Minute,
	}
}

func waitForStatus(t *testing.T, store *fakeStore, jobID string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.Get(context.Background(), jobID)
	t.Fatalf("job %s never reached %s (now %s)", jobID, want, job.Status)
	return nil
}

func TestWorkerProcessesJobToCompletion(t *testing.T) {
	store := newFakeStore()
	job := store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/a", Depth: "standard"})

	executor := funcExecutor(func(_ context.Context, j *Job) *ExecutionResult {
		return &ExecutionResult{Status: StatusCompleted, Result: []byte(`{"status":"ok"}`)}
	})
	pool := NewWorkerPool("pod-1", store, testQueueConfig(), executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	done := waitForStatus(t, store, job.ID, StatusCompleted)
	assert.Equal(t, "pod-1", done.PodID)
	assert.Equal(t, 1, done.Attempts)
	assert.JSONEq(t, `{"status":"ok"}`, string(done.Result))
	assert.NotNil(t, done.CompletedAt)
}

func TestWorkerClaimsHigherPriorityFirst(t *testing.T) {
	store := newFakeStore()
	low := store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/low"})
	high := store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/high", Priority: 10})

	var mu sync.Mutex
	var order []string
	executor := funcExecutor(func(_ context.Context, j *Job) *ExecutionResult {
		mu.Lock()
		order = append(order, j.ID)
		mu.Unlock()
		return &ExecutionResult{Status: StatusCompleted}
	})
	pool := NewWorkerPool("pod-1", store, testQueueConfig(), executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	waitForStatus(t, store, low.ID, StatusCompleted)
	waitForStatus(t, store, high.ID, StatusCompleted)

	// The high-priority job was enqueued later but claimed first.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, []string{high.ID, low.ID}, order)
}

func TestWorkerRespectsCapacity(t *testing.T) {
	store := newFakeStore()
	store.activeOverride = 4
	store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/a"})

	executed := false
	executor := funcExecutor(func(context.Context, *Job) *ExecutionResult {
		executed = true
		return &ExecutionResult{Status: StatusCompleted}
	})
	pool := NewWorkerPool("pod-1", store, testQueueConfig(), executor, nil)
	require.NoError(t, pool.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	pool.Stop()

	assert.False(t, executed, "worker must not claim past the concurrency limit")
	job, err := store.Get(context.Background(), "job-a")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
}

func TestWorkerTimesOutLongJob(t *testing.T) {
	store := newFakeStore()
	job := store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/slow"})

	cfg := testQueueConfig()
	cfg.JobTimeout = 20 * time.Millisecond

	executor := funcExecutor(func(ctx context.Context, _ *Job) *ExecutionResult {
		<-ctx.Done()
		return nil // worker synthesizes the terminal status
	})
	pool := NewWorkerPool("pod-1", store, cfg, executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	done := waitForStatus(t, store, job.ID, StatusTimedOut)
	assert.Contains(t, done.Error, "timed out")
}

func TestPoolCancelJob(t *testing.T) {
	store := newFakeStore()
	job := store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/x"})

	started := make(chan struct{})
	executor := funcExecutor(func(ctx context.Context, _ *Job) *ExecutionResult {
		close(started)
		<-ctx.Done()
		return &ExecutionResult{Status: StatusCancelled, Err: ctx.Err()}
	})
	pool := NewWorkerPool("pod-1", store, testQueueConfig(), executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	<-started
	require.True(t, pool.CancelJob(job.ID))
	waitForStatus(t, store, job.ID, StatusCancelled)
}

func TestPoolStartRecoversStartupOrphans(t *testing.T) {
	store := newFakeStore()
	orphan := store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/o"})
	store.mu.Lock()
	store.jobs[orphan.ID].Status = StatusInProgress
	store.jobs[orphan.ID].PodID = "pod-1"
	store.mu.Unlock()

	executor := funcExecutor(func(context.Context, *Job) *ExecutionResult {
		return &ExecutionResult{Status: StatusCompleted}
	})
	pool := NewWorkerPool("pod-1", store, testQueueConfig(), executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	// The orphan goes back to pending and is then picked up normally.
	waitForStatus(t, store, orphan.ID, StatusCompleted)
	assert.Equal(t, 1, store.startupRecovers)
}

func TestPoolRunsOrphanDetection(t *testing.T) {
	store := newFakeStore()
	cfg := testQueueConfig()
	cfg.WorkerCount = 0

	pool := NewWorkerPool("pod-1", store, cfg, nil, nil)
	require.NoError(t, pool.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	pool.Stop()

	store.mu.Lock()
	calls := store.requeueCalls
	store.mu.Unlock()
	assert.Greater(t, calls, 0, "orphan scan should have run at least once")

	health := pool.Health()
	assert.False(t, health.LastOrphanScan.IsZero())
}

func TestPoolHealth(t *testing.T) {
	store := newFakeStore()
	store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/1"})
	store.add(&Job{Tenant: "acme", Workspace: "main", URL: "https://example.com/2"})

	cfg := testQueueConfig()
	cfg.WorkerCount = 2
	block := make(chan struct{})
	executor := funcExecutor(func(ctx context.Context, _ *Job) *ExecutionResult {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return &ExecutionResult{Status: StatusCompleted}
	})
	pool := NewWorkerPool("pod-1", store, cfg, executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	defer func() {
		close(block)
		pool.Stop()
	}()

	deadline := time.Now().Add(time.Second)
	var health *PoolHealth
	for time.Now().Before(deadline) {
		health = pool.Health()
		if health.ActiveJobs == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, health)
	assert.True(t, health.IsHealthy)
	assert.True(t, health.DBReachable)
	assert.Equal(t, "pod-1", health.PodID)
	assert.Equal(t, 2, health.TotalWorkers)
	assert.Equal(t, 2, health.ActiveJobs)
	assert.Len(t, health.WorkerStats, 2)
}

func TestStatusForEnvelope(t *testing.T) {
	cases := []struct {
		res  step.Result
		want Status
	}{
		{step.OK("pipeline", map[string]any{"x": 1}), StatusCompleted},
		{step.Skip("pipeline", "checkpoint"), StatusCompleted},
		{step.Fail("pipeline", step.NewError(step.CategoryProcessing, "boom")), StatusFailed},
		{step.Fail("pipeline", step.NewError(step.CategoryCancelled, "stop")), StatusCancelled},
		{step.Fail("pipeline", step.NewError(step.CategoryTimeout, "late")), StatusTimedOut},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.res), string(tc.res.Status))
	}
}

func TestEnqueueDedupesLiveJobs(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	first, created, err := store.Enqueue(ctx, &Job{
		Tenant: "acme", Workspace: "main", SourceType: "watch", ExternalID: "vid-1",
		URL: "https://youtube.com/watch?v=vid-1",
	})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.Enqueue(ctx, &Job{
		Tenant: "acme", Workspace: "main", SourceType: "watch", ExternalID: "vid-1",
		URL: "https://youtube.com/watch?v=vid-1",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// A different workspace is a different job.
	_, created, err = store.Enqueue(ctx, &Job{
		Tenant: "acme", Workspace: "staging", SourceType: "watch", ExternalID: "vid-1",
		URL: "https://youtube.com/watch?v=vid-1",
	})
	require.NoError(t, err)
	assert.True(t, created)
}
