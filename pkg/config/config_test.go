package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Validate(DefaultSettings()))
}

func TestEnvOverridesApplied(t *testing.T) {
	t.Setenv("PIPELINE_MAX_PARALLEL_ANALYSIS", "8")
	t.Setenv("QUALITY_MIN_WORD_COUNT", "200")
	t.Setenv("QUALITY_MIN_COHERENCE", "0.4")
	t.Setenv("ENABLE_QUALITY_FILTERING", "false")
	t.Setenv("CACHE_LLM_TTL", "600")
	t.Setenv("SEMANTIC_CACHE_THRESHOLD", "0.9")
	t.Setenv("ROUTER_POLICY", "cost_aware")
	t.Setenv("LLM_PROVIDER_ALLOWLIST", "anthropic-main, openai-fast")
	t.Setenv("HTTP_MAX_RETRIES", "7")
	t.Setenv("ENABLE_TENANCY_STRICT", "true")

	s := DefaultSettings()
	applyEnvOverrides(s)

	assert.Equal(t, 8, s.Pipeline.MaxParallelAnalysis)
	assert.Equal(t, 200, s.Quality.MinWordCount)
	assert.Equal(t, 0.4, s.Quality.MinCoherence)
	assert.False(t, s.Quality.Enabled)
	assert.Equal(t, 600*time.Second, s.Cache.LLMTTL)
	assert.Equal(t, 0.9, s.Cache.SemanticThreshold)
	assert.Equal(t, RouterPolicyCostAware, s.Router.Policy)
	assert.Equal(t, []string{"anthropic-main", "openai-fast"}, s.Router.ProviderAllowlist)
	assert.Equal(t, 7, s.HTTP.MaxRetries)
	assert.True(t, s.Tenancy.Strict)
}

func TestInvalidEnvOverridesIgnored(t *testing.T) {
	t.Setenv("PIPELINE_MAX_PARALLEL_ANALYSIS", "not-a-number")
	t.Setenv("ROUTER_POLICY", "fastest_ever")
	t.Setenv("HTTP_MAX_RETRIES", "99") // out of [1,20]
	t.Setenv("QUALITY_MIN_COHERENCE", "abc")

	s := DefaultSettings()
	applyEnvOverrides(s)

	assert.Equal(t, 4, s.Pipeline.MaxParallelAnalysis)
	assert.Equal(t, RouterPolicyQualityFirst, s.Router.Policy)
	assert.Equal(t, DefaultHTTPRetries, s.HTTP.MaxRetries)
	assert.Equal(t, 0.6, s.Quality.MinCoherence)
}

func TestCheckpointConditionMatching(t *testing.T) {
	tests := []struct {
		name   string
		cond   CheckpointCondition
		fields map[string]any
		want   bool
	}{
		{
			name:   "gt matches",
			cond:   CheckpointCondition{Field: "duration_s", Op: OpGreaterThan, Value: 14400},
			fields: map[string]any{"duration_s": 20000.0},
			want:   true,
		},
		{
			name:   "gt below threshold",
			cond:   CheckpointCondition{Field: "duration_s", Op: OpGreaterThan, Value: 14400},
			fields: map[string]any{"duration_s": 60.0},
			want:   false,
		},
		{
			name:   "missing field fails open",
			cond:   CheckpointCondition{Field: "duration_s", Op: OpGreaterThan, Value: 1},
			fields: map[string]any{"title": "x"},
			want:   false,
		},
		{
			name:   "eq bool",
			cond:   CheckpointCondition{Field: "blocked", Op: OpEqual, Value: true},
			fields: map[string]any{"blocked": true},
			want:   true,
		},
		{
			name:   "contains string",
			cond:   CheckpointCondition{Field: "title", Op: OpContains, Value: "live"},
			fields: map[string]any{"title": "livestream replay"},
			want:   true,
		},
		{
			name:   "type mismatch fails open",
			cond:   CheckpointCondition{Field: "title", Op: OpGreaterThan, Value: 5},
			fields: map[string]any{"title": "abc"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Matches(tt.fields))
		})
	}
}

func TestCheckpointAppliesTo(t *testing.T) {
	rule := CheckpointRule{
		Stage:  "acquire",
		Depths: []string{"standard"},
	}
	assert.True(t, rule.AppliesTo("standard", ""))
	assert.False(t, rule.AppliesTo("deep", ""))

	all := CheckpointRule{Stage: "acquire"}
	assert.True(t, all.AppliesTo("experimental", ""))

	typed := CheckpointRule{Stage: "acquire", ContentTy: "podcast"}
	assert.True(t, typed.AppliesTo("standard", "podcast"))
	assert.False(t, typed.AppliesTo("standard", "video"))
}

func TestValidatorRejectsBadValues(t *testing.T) {
	s := DefaultSettings()
	s.Router.Policy = "bogus"
	err := Validate(s)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "router", verr.Section)

	s = DefaultSettings()
	s.HTTP.MaxRetries = 50
	assert.Error(t, Validate(s))

	s = DefaultSettings()
	s.Cache.SemanticThreshold = 1.5
	assert.Error(t, Validate(s))

	s = DefaultSettings()
	s.Checkpoints = []CheckpointRule{{Stage: "acquire", Action: "explode",
		When: CheckpointCondition{Field: "x", Op: OpEqual}}}
	assert.Error(t, Validate(s))
}

func TestInitializeMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
pipeline:
  max_parallel_analysis: 6
router:
  policy: latency_aware
quality:
  min_word_count: 300
providers:
  anthropic-main:
    type: anthropic
    model: claude-sonnet-4-5
    cost_per_1k_in: 0.003
    cost_per_1k_out: 0.015
    capabilities: [analysis, factcheck]
    top_tier: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFile), []byte(yaml), 0o644))

	s, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 6, s.Pipeline.MaxParallelAnalysis)
	assert.Equal(t, RouterPolicyLatencyAware, s.Router.Policy)
	assert.Equal(t, 300, s.Quality.MinWordCount)
	// Untouched defaults survive the merge.
	assert.Equal(t, 30*time.Second, s.HTTP.DefaultTimeout)
	require.Contains(t, s.Providers, "anthropic-main")
	assert.True(t, s.Providers["anthropic-main"].TopTier)
}

func TestInitializeMissingDirUsesDefaults(t *testing.T) {
	s, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Pipeline.MaxParallelAnalysis)
	assert.Len(t, s.Checkpoints, 2)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CL_TEST_TOKEN", "sekret")

	out := ExpandEnv([]byte("token: {{.CL_TEST_TOKEN}}\npattern: ^secret.*$\n"))
	assert.Contains(t, string(out), "token: sekret")
	// Literal $ survives untouched.
	assert.Contains(t, string(out), "^secret.*$")
}
