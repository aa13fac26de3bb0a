package config

import "time"

// Default retry attempts for the HTTP substrate (lowest precedence).
const DefaultHTTPRetries = 3

// Valid bounds for retry attempt overrides. Values outside are ignored.
const (
	MinHTTPRetries = 1
	MaxHTTPRetries = 20
)

// DefaultSettings returns the built-in configuration. User YAML and
// environment overrides are merged on top.
func DefaultSettings() *Settings {
	return &Settings{
		Pipeline: PipelineConfig{
			MaxParallelAnalysis:  4,
			StandardTimeout:      120 * time.Second,
			DeepTimeout:          240 * time.Second,
			ExperimentalTimeout:  600 * time.Second,
			LLMCallTimeout:       60 * time.Second,
			TranscriptionTimeout: 300 * time.Second,
		},
		Quality: QualityConfig{
			Enabled:          true,
			MinWordCount:     500,
			MinSentenceCount: 10,
			MinCoherence:     0.6,
			MinOverall:       0.65,
		},
		Cache: CacheConfig{
			LLMTTL:            3600 * time.Second,
			RetrievalTTL:      300 * time.Second,
			ToolTTL:           300 * time.Second,
			RoutingTTL:        300 * time.Second,
			SemanticEnabled:   true,
			SemanticThreshold: 0.85,
			SemanticTTL:       3600 * time.Second,
			MaxEntries:        4096,
		},
		Router: RouterConfig{
			Policy:            RouterPolicyQualityFirst,
			Bandit:            BanditUCB1,
			QualityFirstTasks: []string{"verification", "factcheck", "high-stakes"},
			Epsilon:           0.1,
			UCBConfidence:     1.4,
			LinUCBAlpha:       0.5,
			Seed:              1,
			SnapshotPath:      "bandit-state.json",
			SnapshotInterval:  5 * time.Minute,
			Weights:           DefaultRewardWeights(),
		},
		HTTP: HTTPConfig{
			MaxRetries:           DefaultHTTPRetries,
			DefaultTimeout:       30 * time.Second,
			BackoffFactor:        2.0,
			ConnectionErrorScale: 1.5,
			BreakerFailures:      5,
			BreakerCooldown:      30 * time.Second,
		},
		Tenancy: TenancyConfig{Strict: false},
		Observability: ObservabilityConfig{
			PrometheusEndpoint: true,
			Tracing:            false,
		},
		Queue: QueueConfig{
			WorkerCount:             4,
			MaxConcurrentJobs:       8,
			PollInterval:            1 * time.Second,
			PollIntervalJitter:      500 * time.Millisecond,
			HeartbeatInterval:       15 * time.Second,
			JobTimeout:              15 * time.Minute,
			GracefulShutdownTimeout: 15 * time.Minute,
			OrphanDetectionInterval: 5 * time.Minute,
			OrphanThreshold:         5 * time.Minute,
		},
		Slack: SlackConfig{
			Enabled:  false,
			TokenEnv: "SLACK_BOT_TOKEN",
		},
		Providers:   map[string]ProviderConfig{},
		Checkpoints: DefaultCheckpoints(),
	}
}

// DefaultRewardWeights returns the documented per-policy reward weights.
// Failure penalty is fixed at 1.0 (drives composite to -1 on hard failure).
func DefaultRewardWeights() map[RouterPolicy]RewardWeights {
	return map[RouterPolicy]RewardWeights{
		RouterPolicyQualityFirst: {Quality: 0.8, Cost: 0.1, Latency: 0.1},
		RouterPolicyCostAware:    {Quality: 0.4, Cost: 0.4, Latency: 0.2},
		RouterPolicyLatencyAware: {Quality: 0.4, Cost: 0.2, Latency: 0.4},
	}
}
