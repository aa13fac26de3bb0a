package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/contentlens/contentlens/pkg/config"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider adapts requests to the Anthropic messages API.
type AnthropicProvider struct {
	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string
}

func init() {
	RegisterProvider(config.ProviderTypeAnthropic, &AnthropicProvider{APIKeyEnv: "ANTHROPIC_API_KEY"})
}

// Name returns the provider identifier.
func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// BuildURL constructs the Anthropic messages endpoint.
func (a *AnthropicProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return strings.TrimSuffix(baseURL, "/") + "/v1/messages"
}

// Headers returns Anthropic authentication headers.
func (a *AnthropicProvider) Headers() map[string]string {
	h := map[string]string{"anthropic-version": anthropicVersion}
	if key := os.Getenv(a.APIKeyEnv); key != "" {
		h["x-api-key"] = key
	}
	return h
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequestBody creates the Anthropic request body. System messages are
// lifted into the top-level system field.
func (a *AnthropicProvider) BuildRequestBody(model string, req CompletionRequest) ([]byte, error) {
	var system string
	var msgs []anthropicMessage
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    msgs,
		System:      system,
		Temperature: req.Temperature,
	})
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts the text blocks from an Anthropic response.
func (a *AnthropicProvider) ParseResponse(body []byte) (*CompletionResponse, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:  content.String(),
		Model:    resp.Model,
		Provider: a.Name(),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: resp.StopReason,
	}, nil
}
