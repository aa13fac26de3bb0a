// Package metrics defines every Prometheus collector used by the pipeline.
// Collectors are declared in one place so metric names stay consistent and
// tests can assert on them through a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Similarity buckets reported by the semantic cache.
const (
	SimilarityBucketHigh = ">=0.9"
	SimilarityBucketMid  = "0.75-0.9"
	SimilarityBucketLow  = "<0.75"
)

// Metrics aggregates all pipeline collectors. A single instance is owned by
// the PipelineRuntime and shared by every component.
type Metrics struct {
	PipelineFailures  *prometheus.CounterVec
	PipelineRuns      *prometheus.CounterVec
	StageLatency      *prometheus.HistogramVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	CacheSimilarity   *prometheus.CounterVec
	PrefetchIssued    prometheus.Counter
	PrefetchUsed      prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	HTTPRetryAttempts prometheus.Counter
	HTTPRetryGiveups  prometheus.Counter
	TenancyFallbacks  *prometheus.CounterVec
	RouterSelections  *prometheus.CounterVec
	RouterRewards     *prometheus.HistogramVec
	QueueJobs         *prometheus.CounterVec
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PipelineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Stage failures by stage name and error category.",
		}, []string{"stage", "category"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Completed pipeline runs by depth and terminal status.",
		}, []string{"depth", "status"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_latency_seconds",
			Help:    "Wall-clock latency per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache hits by domain and layer (exact or semantic).",
		}, []string{"domain", "layer"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache misses by domain.",
		}, []string{"domain"}),
		CacheSimilarity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_similarity",
			Help: "Semantic similarity of nearest cache candidate, bucketed.",
		}, []string{"bucket"}),
		PrefetchIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semantic_prefetch_issued_total",
			Help: "Semantic prefetch lookups issued alongside exact lookups.",
		}),
		PrefetchUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semantic_prefetch_used_total",
			Help: "Semantic prefetch results that satisfied the request.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Outbound HTTP requests by method, host and status code.",
		}, []string{"method", "host", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Outbound HTTP request latency by method and host.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"method", "host"}),
		HTTPRetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_retry_attempts_total",
			Help: "Individual retry attempts made by the HTTP substrate.",
		}),
		HTTPRetryGiveups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_retry_giveups_total",
			Help: "Requests that exhausted their retry budget.",
		}),
		TenancyFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenancy_fallback_total",
			Help: "Requests that fell back to the default tenant (non-strict mode).",
		}, []string{"component"}),
		RouterSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_selections_total",
			Help: "Arm selections by policy and arm.",
		}, []string{"policy", "arm"}),
		RouterRewards: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_reward_composite",
			Help:    "Composite reward observed per arm.",
			Buckets: prometheus.LinearBuckets(-1, 0.2, 11),
		}, []string{"arm"}),
		QueueJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watch_queue_jobs_total",
			Help: "Watch queue jobs by terminal status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.PipelineFailures, m.PipelineRuns, m.StageLatency,
		m.CacheHits, m.CacheMisses, m.CacheSimilarity,
		m.PrefetchIssued, m.PrefetchUsed,
		m.HTTPRequests, m.HTTPLatency, m.HTTPRetryAttempts, m.HTTPRetryGiveups,
		m.TenancyFallbacks,
		m.RouterSelections, m.RouterRewards,
		m.QueueJobs,
	)
	return m
}

// SimilarityBucket maps a cosine similarity to its reporting bucket.
func SimilarityBucket(sim float64) string {
	switch {
	case sim >= 0.9:
		return SimilarityBucketHigh
	case sim >= 0.75:
		return SimilarityBucketMid
	default:
		return SimilarityBucketLow
	}
}
