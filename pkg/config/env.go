package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies the closed set of recognized environment options
// on top of the merged settings. Invalid values are ignored with a warning;
// the prior value stands.
func applyEnvOverrides(s *Settings) {
	envInt("PIPELINE_MAX_PARALLEL_ANALYSIS", &s.Pipeline.MaxParallelAnalysis)
	envInt("PIPELINE_REQUEST_BUDGET_MS", &s.Pipeline.RequestBudgetMS)

	envInt("QUALITY_MIN_WORD_COUNT", &s.Quality.MinWordCount)
	envInt("QUALITY_MIN_SENTENCE_COUNT", &s.Quality.MinSentenceCount)
	envFloat("QUALITY_MIN_COHERENCE", &s.Quality.MinCoherence)
	envFloat("QUALITY_MIN_OVERALL", &s.Quality.MinOverall)
	envBool("ENABLE_QUALITY_FILTERING", &s.Quality.Enabled)

	envSeconds("CACHE_LLM_TTL", &s.Cache.LLMTTL)
	envSeconds("CACHE_TOOL_TTL", &s.Cache.ToolTTL)
	envSeconds("CACHE_ROUTING_TTL", &s.Cache.RoutingTTL)
	envBool("ENABLE_SEMANTIC_CACHE", &s.Cache.SemanticEnabled)
	envFloat("SEMANTIC_CACHE_THRESHOLD", &s.Cache.SemanticThreshold)
	envSeconds("SEMANTIC_CACHE_TTL_SECONDS", &s.Cache.SemanticTTL)

	if v := os.Getenv("ROUTER_POLICY"); v != "" {
		if p := RouterPolicy(v); p.IsValid() {
			s.Router.Policy = p
		} else {
			slog.Warn("Ignoring invalid env override", "key", "ROUTER_POLICY", "value", v)
		}
	}
	envCSV("LLM_PROVIDER_ALLOWLIST", &s.Router.ProviderAllowlist)
	envCSV("QUALITY_FIRST_TASKS", &s.Router.QualityFirstTasks)

	envRetries("HTTP_MAX_RETRIES", &s.HTTP.MaxRetries)
	envSeconds("HTTP_DEFAULT_TIMEOUT", &s.HTTP.DefaultTimeout)
	envFloat("HTTP_BACKOFF_FACTOR", &s.HTTP.BackoffFactor)
	envFloat("HTTP_CONNECTION_ERROR_SCALE", &s.HTTP.ConnectionErrorScale)

	envBool("ENABLE_TENANCY_STRICT", &s.Tenancy.Strict)

	envBool("ENABLE_PROMETHEUS_ENDPOINT", &s.Observability.PrometheusEndpoint)
	envBool("ENABLE_TRACING", &s.Observability.Tracing)
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring invalid env override", "key", key, "value", v)
		return
	}
	*dst = n
}

// envRetries applies an integer override only when it falls in the valid
// retry range [MinHTTPRetries, MaxHTTPRetries].
func envRetries(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < MinHTTPRetries || n > MaxHTTPRetries {
		slog.Warn("Ignoring out-of-range env override", "key", key, "value", v)
		return
	}
	*dst = n
}

func envSeconds(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("Ignoring invalid env override", "key", key, "value", v)
		return
	}
	*dst = time.Duration(n) * time.Second
}

func envFloat(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring invalid env override", "key", key, "value", v)
		return
	}
	*dst = f
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Ignoring invalid env override", "key", key, "value", v)
		return
	}
	*dst = b
}

func envCSV(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
