package analysis

import (
	"context"
	"encoding/json"

	"github.com/contentlens/contentlens/pkg/cache"
	"github.com/contentlens/contentlens/pkg/llm"
	"github.com/contentlens/contentlens/pkg/router"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// Completer runs routed LLM completions behind the multi-level cache. Cached
// values are serialized CompletionResponses; a hit skips routing entirely and
// reports zero marginal cost.
type Completer struct {
	Router   *router.Router
	Cache    *cache.Cache
	Resolver *tenancy.Resolver
}

// Complete returns the completion text for the prompt, consulting the cache
// first. The cache key's model component is the task name: the concrete model
// is a routing decision made inside the compute, and identical logical
// requests must hit regardless of which arm served the original.
//
// Attempts lists every call the router dispatched for this completion; it is
// empty on a cache hit (nothing was dispatched).
func (c *Completer) Complete(ctx context.Context, task router.Task, prompt string, score func(*llm.CompletionResponse) float64) (*llm.CompletionResponse, []step.Attempt, step.CacheInfo, error) {
	tc, err := c.Resolver.Current(ctx, "analysis")
	if err != nil {
		return nil, nil, step.CacheInfo{}, step.NewError(step.CategoryTenancy, err.Error())
	}

	req := cache.Request{
		Tenant: tc,
		Domain: cache.DomainLLM,
		Prompt: prompt,
		Model:  task.Name,
	}

	var attempts []step.Attempt
	raw, info, err := c.Cache.GetOrCompute(ctx, req, func(ctx context.Context) ([]byte, error) {
		resp, dispatched, err := c.Router.Complete(ctx, task, llm.CompletionRequest{
			Messages: []llm.Message{{Role: "user", Content: prompt}},
		}, score)
		attempts = dispatched
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	})
	if err != nil {
		return nil, attempts, step.CacheInfo{}, err
	}

	var resp llm.CompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, attempts, info, step.NewError(step.CategoryProcessing, "corrupt cached completion: "+err.Error())
	}
	if info.Hit {
		resp.CostUSD = 0
	}
	return &resp, attempts, info, nil
}
