// Package config provides typed settings for the pipeline, loaded from YAML
// with environment overrides, built-in defaults, and comprehensive validation.
package config

import "time"

// Settings is the root configuration object.
type Settings struct {
	Pipeline      PipelineConfig            `yaml:"pipeline"`
	Quality       QualityConfig             `yaml:"quality"`
	Cache         CacheConfig               `yaml:"cache"`
	Router        RouterConfig              `yaml:"router"`
	HTTP          HTTPConfig                `yaml:"http"`
	Tenancy       TenancyConfig             `yaml:"tenancy"`
	Observability ObservabilityConfig       `yaml:"observability"`
	Queue         QueueConfig               `yaml:"queue"`
	Slack         SlackConfig               `yaml:"slack"`
	Providers     map[string]ProviderConfig `yaml:"providers"`
	Checkpoints   []CheckpointRule          `yaml:"checkpoints"`
}

// PipelineConfig controls orchestrator concurrency and budgets.
type PipelineConfig struct {
	// MaxParallelAnalysis bounds concurrent tasks inside the analysis fan-out.
	MaxParallelAnalysis int `yaml:"max_parallel_analysis"`

	// RequestBudgetMS overrides the per-depth request budget when > 0.
	RequestBudgetMS int `yaml:"request_budget_ms"`

	// Per-depth request budgets.
	StandardTimeout     time.Duration `yaml:"standard_timeout"`
	DeepTimeout         time.Duration `yaml:"deep_timeout"`
	ExperimentalTimeout time.Duration `yaml:"experimental_timeout"`

	// Per-operation budgets.
	LLMCallTimeout       time.Duration `yaml:"llm_call_timeout"`
	TranscriptionTimeout time.Duration `yaml:"transcription_timeout"`
}

// QualityConfig holds transcript quality-filter thresholds.
type QualityConfig struct {
	Enabled          bool    `yaml:"enabled"`
	MinWordCount     int     `yaml:"min_word_count"`
	MinSentenceCount int     `yaml:"min_sentence_count"`
	MinCoherence     float64 `yaml:"min_coherence"`
	MinOverall       float64 `yaml:"min_overall"`
}

// CacheConfig holds multi-level cache settings. TTLs are per cache domain.
type CacheConfig struct {
	LLMTTL       time.Duration `yaml:"llm_ttl"`
	RetrievalTTL time.Duration `yaml:"retrieval_ttl"`
	ToolTTL      time.Duration `yaml:"tool_ttl"`
	RoutingTTL   time.Duration `yaml:"routing_ttl"`

	SemanticEnabled   bool          `yaml:"semantic_enabled"`
	SemanticThreshold float64       `yaml:"semantic_threshold"`
	SemanticTTL       time.Duration `yaml:"semantic_ttl"`

	// MaxEntries caps each layer's entry count (LRU evicts beyond it).
	MaxEntries int `yaml:"max_entries"`

	// RedisAddr switches the exact layer to Redis when non-empty.
	RedisAddr string `yaml:"redis_addr"`
}

// RewardWeights are the composite-reward weights for a routing policy.
type RewardWeights struct {
	Quality float64 `yaml:"quality"`
	Cost    float64 `yaml:"cost"`
	Latency float64 `yaml:"latency"`
}

// RouterConfig controls arm selection and bandit state persistence.
type RouterConfig struct {
	Policy            RouterPolicy  `yaml:"policy"`
	Bandit            BanditKind    `yaml:"bandit"`
	ProviderAllowlist []string      `yaml:"provider_allowlist"`
	QualityFirstTasks []string      `yaml:"quality_first_tasks"`
	Epsilon           float64       `yaml:"epsilon"`
	UCBConfidence     float64       `yaml:"ucb_confidence"`
	LinUCBAlpha       float64       `yaml:"linucb_alpha"`
	Seed              int64         `yaml:"seed"`
	SnapshotPath      string        `yaml:"snapshot_path"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`

	// Weights per policy; unset policies use built-in defaults.
	Weights map[RouterPolicy]RewardWeights `yaml:"weights"`
}

// HTTPConfig controls the resilient HTTP substrate.
type HTTPConfig struct {
	MaxRetries           int            `yaml:"max_retries"`
	DefaultTimeout       time.Duration  `yaml:"default_timeout"`
	BackoffFactor        float64        `yaml:"backoff_factor"`
	ConnectionErrorScale float64        `yaml:"connection_error_scale"`
	BreakerFailures      int            `yaml:"breaker_failures"`
	BreakerCooldown      time.Duration  `yaml:"breaker_cooldown"`
	TenantRetries        map[string]int `yaml:"tenant_retries"`
}

// TenancyConfig controls tenant-context strictness.
type TenancyConfig struct {
	Strict bool `yaml:"strict"`
}

// ObservabilityConfig toggles the metrics endpoint and tracing.
type ObservabilityConfig struct {
	PrometheusEndpoint bool `yaml:"prometheus_endpoint"`
	Tracing            bool `yaml:"tracing"`
}

// QueueConfig contains watch-queue worker pool configuration.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentJobs is the global limit of jobs being processed across
	// all replicas. Enforced by a database COUNT(*) check.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// PollInterval is the base interval for checking queued jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter randomizes polling: PollInterval ± jitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// HeartbeatInterval is how often a worker refreshes a claimed job's
	// heartbeat for orphan detection.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// JobTimeout is the maximum wall-clock time for one job.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// GracefulShutdownTimeout bounds the drain during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for orphaned jobs.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a job may go without a heartbeat before it
	// is requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// SlackConfig holds notifier settings.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// ProviderConfig describes one LLM provider arm.
type ProviderConfig struct {
	Type          ProviderType `yaml:"type"`
	Model         string       `yaml:"model"`
	BaseURL       string       `yaml:"base_url,omitempty"`
	APIKeyEnv     string       `yaml:"api_key_env,omitempty"`
	CostPer1KIn   float64      `yaml:"cost_per_1k_in"`
	CostPer1KOut  float64      `yaml:"cost_per_1k_out"`
	ContextWindow int          `yaml:"context_window"`
	Capabilities  []string     `yaml:"capabilities"`
	P95LatencyMS  int          `yaml:"p95_latency_ms"`

	// TopTier marks the arm as a member of the QUALITY_FIRST shortlist.
	TopTier bool `yaml:"top_tier"`
}
