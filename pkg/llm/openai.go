package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/contentlens/contentlens/pkg/config"
)

// OpenAIProvider adapts requests to the OpenAI chat completions API and
// compatible endpoints (OpenRouter, vLLM).
type OpenAIProvider struct {
	APIKeyEnv string
}

func init() {
	RegisterProvider(config.ProviderTypeOpenAI, &OpenAIProvider{APIKeyEnv: "OPENAI_API_KEY"})
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL constructs the chat completions endpoint.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// Headers returns OpenAI bearer authentication.
func (o *OpenAIProvider) Headers() map[string]string {
	h := map[string]string{}
	if key := os.Getenv(o.APIKeyEnv); key != "" {
		h["Authorization"] = "Bearer " + key
	}
	return h
}

type openaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// BuildRequestBody creates the chat completions request body. The neutral
// message shape already matches the OpenAI format.
func (o *OpenAIProvider) BuildRequestBody(model string, req CompletionRequest) ([]byte, error) {
	return json.Marshal(openaiRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts the first choice from a chat completions response.
func (o *OpenAIProvider) ParseResponse(body []byte) (*CompletionResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	return &CompletionResponse{
		Content:  resp.Choices[0].Message.Content,
		Model:    resp.Model,
		Provider: o.Name(),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
