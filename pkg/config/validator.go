package config

import (
	"errors"
	"fmt"
)

// Validate performs comprehensive validation (fail-fast, first error wins).
func Validate(s *Settings) error {
	if err := validatePipeline(&s.Pipeline); err != nil {
		return err
	}
	if err := validateQuality(&s.Quality); err != nil {
		return err
	}
	if err := validateCache(&s.Cache); err != nil {
		return err
	}
	if err := validateRouter(&s.Router); err != nil {
		return err
	}
	if err := validateHTTP(&s.HTTP); err != nil {
		return err
	}
	if err := validateQueue(&s.Queue); err != nil {
		return err
	}
	if err := validateProviders(s.Providers); err != nil {
		return err
	}
	return validateCheckpoints(s.Checkpoints)
}

func validatePipeline(p *PipelineConfig) error {
	if p.MaxParallelAnalysis < 1 {
		return NewValidationError("pipeline", "", "max_parallel_analysis",
			errors.New("must be at least 1"))
	}
	if p.StandardTimeout <= 0 || p.DeepTimeout <= 0 || p.ExperimentalTimeout <= 0 {
		return NewValidationError("pipeline", "", "timeouts",
			errors.New("depth timeouts must be positive"))
	}
	return nil
}

func validateQuality(q *QualityConfig) error {
	if q.MinCoherence < 0 || q.MinCoherence > 1 {
		return NewValidationError("quality", "", "min_coherence",
			errors.New("must be in [0,1]"))
	}
	if q.MinOverall < 0 || q.MinOverall > 1 {
		return NewValidationError("quality", "", "min_overall",
			errors.New("must be in [0,1]"))
	}
	if q.MinWordCount < 0 || q.MinSentenceCount < 0 {
		return NewValidationError("quality", "", "min_counts",
			errors.New("must be non-negative"))
	}
	return nil
}

func validateCache(c *CacheConfig) error {
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		return NewValidationError("cache", "", "semantic_threshold",
			errors.New("must be in [0,1]"))
	}
	if c.MaxEntries < 1 {
		return NewValidationError("cache", "", "max_entries",
			errors.New("must be at least 1"))
	}
	return nil
}

func validateRouter(r *RouterConfig) error {
	if !r.Policy.IsValid() {
		return NewValidationError("router", "", "policy",
			fmt.Errorf("invalid policy: %s", r.Policy))
	}
	if !r.Bandit.IsValid() {
		return NewValidationError("router", "", "bandit",
			fmt.Errorf("invalid bandit kind: %s", r.Bandit))
	}
	if r.Epsilon < 0 || r.Epsilon > 1 {
		return NewValidationError("router", "", "epsilon",
			errors.New("must be in [0,1]"))
	}
	for policy, w := range r.Weights {
		sum := w.Quality + w.Cost + w.Latency
		if sum <= 0 {
			return NewValidationError("router", string(policy), "weights",
				errors.New("weights must sum to a positive value"))
		}
	}
	return nil
}

func validateHTTP(h *HTTPConfig) error {
	if h.MaxRetries < MinHTTPRetries || h.MaxRetries > MaxHTTPRetries {
		return NewValidationError("http", "", "max_retries",
			fmt.Errorf("must be in [%d,%d]", MinHTTPRetries, MaxHTTPRetries))
	}
	if h.DefaultTimeout <= 0 {
		return NewValidationError("http", "", "default_timeout",
			errors.New("must be positive"))
	}
	if h.BackoffFactor < 1 {
		return NewValidationError("http", "", "backoff_factor",
			errors.New("must be at least 1"))
	}
	for tenant, n := range h.TenantRetries {
		if n < MinHTTPRetries || n > MaxHTTPRetries {
			return NewValidationError("http", tenant, "tenant_retries",
				fmt.Errorf("must be in [%d,%d]", MinHTTPRetries, MaxHTTPRetries))
		}
	}
	return nil
}

func validateQueue(q *QueueConfig) error {
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "", "worker_count",
			errors.New("must be at least 1"))
	}
	if q.MaxConcurrentJobs < q.WorkerCount {
		return NewValidationError("queue", "", "max_concurrent_jobs",
			errors.New("must be at least worker_count"))
	}
	return nil
}

func validateProviders(providers map[string]ProviderConfig) error {
	for name, p := range providers {
		if !p.Type.IsValid() {
			return NewValidationError("provider", name, "type",
				fmt.Errorf("invalid provider type: %s", p.Type))
		}
		if p.Model == "" {
			return NewValidationError("provider", name, "model",
				errors.New("model is required"))
		}
		if p.CostPer1KIn < 0 || p.CostPer1KOut < 0 {
			return NewValidationError("provider", name, "cost",
				errors.New("costs must be non-negative"))
		}
	}
	return nil
}

func validateCheckpoints(rules []CheckpointRule) error {
	for i, r := range rules {
		id := fmt.Sprintf("#%d", i)
		if r.Stage == "" {
			return NewValidationError("checkpoint", id, "stage",
				errors.New("stage is required"))
		}
		if !r.Action.IsValid() {
			return NewValidationError("checkpoint", id, "action",
				fmt.Errorf("invalid action: %s", r.Action))
		}
		if !r.When.Op.IsValid() {
			return NewValidationError("checkpoint", id, "when.op",
				fmt.Errorf("invalid operator: %s", r.When.Op))
		}
		if r.When.Field == "" {
			return NewValidationError("checkpoint", id, "when.field",
				errors.New("field is required"))
		}
	}
	return nil
}
