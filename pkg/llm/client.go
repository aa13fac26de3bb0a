package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/httpx"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
	"github.com/contentlens/contentlens/pkg/tracing"
)

// Client executes completions against configured provider arms through the
// HTTP substrate.
type Client struct {
	http    *httpx.Client
	timeout time.Duration
}

// NewClient creates a completion client. timeout bounds one LLM call
// including retries; 0 uses the substrate default.
func NewClient(http *httpx.Client, timeout time.Duration) *Client {
	return &Client{http: http, timeout: timeout}
}

// Complete runs one completion against the named arm. The arm's provider
// type selects the wire adapter; cost is computed from reported usage and the
// arm's configured rates.
func (c *Client) Complete(ctx context.Context, armID string, arm config.ProviderConfig, req CompletionRequest) (*CompletionResponse, error) {
	provider := GetProvider(arm.Type)
	if provider == nil {
		return nil, step.NewError(step.CategoryValidation, "unknown provider type: "+string(arm.Type))
	}

	body, err := provider.BuildRequestBody(arm.Model, req)
	if err != nil {
		return nil, step.NewError(step.CategoryValidation, "build request body: "+err.Error())
	}

	headers := provider.Headers()
	if arm.APIKeyEnv != "" {
		// Arm-specific key env overrides the adapter default.
		switch arm.Type {
		case config.ProviderTypeAnthropic:
			headers = (&AnthropicProvider{APIKeyEnv: arm.APIKeyEnv}).Headers()
		case config.ProviderTypeOpenAI:
			headers = (&OpenAIProvider{APIKeyEnv: arm.APIKeyEnv}).Headers()
		}
	}

	ctx, span := tracing.StartSpan(ctx, "llm.complete",
		attribute.String("llm.arm", armID),
		attribute.String("llm.provider", provider.Name()),
		attribute.String("llm.model", arm.Model))
	defer span.End()

	var tenantID string
	if tc, ok := tenancy.FromContext(ctx); ok {
		tenantID = tc.TenantID
	}

	start := time.Now()
	httpResp, err := c.http.Post(ctx, provider.BuildURL(arm.BaseURL), body, httpx.Options{
		Timeout: c.timeout,
		Tenant:  tenantID,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}

	resp, err := provider.ParseResponse(httpResp.Body)
	if err != nil {
		return nil, step.NewError(step.CategoryProviderError, err.Error()).WithRetryable(false)
	}

	resp.LatencyMS = time.Since(start).Milliseconds()
	resp.Retries = httpResp.Retries
	resp.CostUSD = cost(resp.Usage, arm)
	if resp.Model == "" {
		resp.Model = arm.Model
	}
	return resp, nil
}

// cost prices a completion from reported usage and per-1K-token rates.
func cost(usage TokenUsage, arm config.ProviderConfig) float64 {
	return float64(usage.PromptTokens)/1000*arm.CostPer1KIn +
		float64(usage.CompletionTokens)/1000*arm.CostPer1KOut
}
