package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/httpx"
)

func TestAnthropicBuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}
	body, err := p.BuildRequestBody("claude-sonnet-4-5", CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	})
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	// System message is lifted out of the messages array.
	assert.Equal(t, "be brief", req["system"])
	assert.Len(t, req["messages"], 1)
	assert.Equal(t, float64(4096), req["max_tokens"])
	_, hasTemp := req["temperature"]
	assert.False(t, hasTemp)
}

func TestAnthropicParseResponse(t *testing.T) {
	p := &AnthropicProvider{}
	resp, err := p.ParseResponse([]byte(`{
		"content": [{"type":"text","text":"part one "},{"type":"text","text":"part two"}],
		"model": "claude-sonnet-4-5",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 120, "output_tokens": 30}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 150, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)
}

func TestOpenAIParseResponse(t *testing.T) {
	p := &OpenAIProvider{}
	resp, err := p.ParseResponse([]byte(`{
		"model": "gpt-4o",
		"choices": [{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	_, err = p.ParseResponse([]byte(`{"choices":[]}`))
	assert.Error(t, err)
}

func TestProviderURLs(t *testing.T) {
	a := &AnthropicProvider{}
	assert.Equal(t, "https://api.anthropic.com/v1/messages", a.BuildURL(""))
	assert.Equal(t, "http://localhost:9999/v1/messages", a.BuildURL("http://localhost:9999/"))

	o := &OpenAIProvider{}
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", o.BuildURL(""))
	assert.Equal(t, "http://x/chat/completions", o.BuildURL("http://x/chat/completions"))
}

func TestClientCompleteComputesCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{
			"content": [{"type":"text","text":"summary"}],
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1000, "output_tokens": 2000}
		}`))
	}))
	defer srv.Close()

	client := NewClient(httpx.New(config.HTTPConfig{
		MaxRetries:     3,
		DefaultTimeout: 5 * time.Second,
	}, nil), 0)

	arm := config.ProviderConfig{
		Type:         config.ProviderTypeAnthropic,
		Model:        "claude-sonnet-4-5",
		BaseURL:      srv.URL,
		CostPer1KIn:  0.003,
		CostPer1KOut: 0.015,
	}

	resp, err := client.Complete(context.Background(), "anthropic-main", arm, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "summarize"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "summary", resp.Content)
	assert.InDelta(t, 0.003+2*0.015, resp.CostUSD, 1e-9)
	assert.GreaterOrEqual(t, resp.LatencyMS, int64(0))
}

func TestHashEmbedderDeterministicAndDiscriminative(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()

	a1, err := e.Embed(ctx, "What is the quarterly revenue for Acme?")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "What is the quarterly revenue for Acme?")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	// Punctuation/whitespace variants stay close.
	near, err := e.Embed(ctx, "what is the quarterly revenue for acme")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "compile a list of llama farming techniques")
	require.NoError(t, err)

	simNear := dot(a1, near)
	simFar := dot(a1, far)
	assert.Greater(t, simNear, 0.9)
	assert.Less(t, simFar, simNear)
}

// dot over unit vectors equals cosine similarity.
func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
