// Package llm provides the completion client and provider adapters. Adapters
// translate a neutral completion request into provider wire formats; all
// traffic goes through the resilient HTTP substrate.
package llm

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// TokenUsage reports token consumption for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is the provider-neutral request shape.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64 // nil = provider default
}

// CompletionResponse is the provider-neutral response shape.
type CompletionResponse struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	Provider     string     `json:"provider"`
	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finish_reason,omitempty"`

	// CostUSD is computed from usage and the arm's configured rates.
	CostUSD float64 `json:"cost_usd"`

	// LatencyMS is the wall-clock call latency including retries.
	LatencyMS int64 `json:"latency_ms"`

	// Retries consumed by the HTTP substrate for this call.
	Retries int `json:"retries,omitempty"`
}
