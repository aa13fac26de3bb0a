// Package router selects LLM provider arms with contextual bandit policies,
// learns from composite rewards, and enforces the quality backstop for
// high-stakes tasks.
package router

import (
	"context"
	"log/slog"
	"math/rand"
	"slices"
	"sort"
	"sync"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/llm"
	"github.com/contentlens/contentlens/pkg/metrics"
	"github.com/contentlens/contentlens/pkg/step"
)

// highStakesQualityFloor triggers the top-tier backstop retry when a
// high-stakes result scores below it.
const highStakesQualityFloor = 0.7

// Task describes the work a completion is routed for. Name scopes the bandit
// state; Capability and CostCeiling filter the candidate set.
type Task struct {
	Name        string
	Capability  string
	CostCeiling float64 // max blended $ per 1K tokens; 0 = uncapped
	HighStakes  bool
	Features    []float64
}

// Outcome is the observed result of a routed completion.
type Outcome struct {
	Quality   float64 // [0,1]
	CostUSD   float64
	LatencyMS int64
	Failed    bool
}

// Router owns arm selection and bandit learning. Concurrency-safe.
type Router struct {
	cfg    config.RouterConfig
	arms   map[string]config.ProviderConfig
	client *llm.Client
	m      *metrics.Metrics
	logger *slog.Logger

	mu       sync.Mutex
	policies map[string]bandit // keyed by task name
}

// New creates a router over the configured arms. client may be nil when only
// Select/Observe are used (tests).
func New(cfg config.RouterConfig, arms map[string]config.ProviderConfig, client *llm.Client, m *metrics.Metrics) *Router {
	return &Router{
		cfg:      cfg,
		arms:     arms,
		client:   client,
		m:        m,
		logger:   slog.Default().With("component", "router"),
		policies: make(map[string]bandit),
	}
}

// policy returns (creating on first use) the bandit for a task domain.
// Callers hold r.mu.
func (r *Router) policy(task string) bandit {
	if p, ok := r.policies[task]; ok {
		return p
	}
	var p bandit
	switch r.cfg.Bandit {
	case config.BanditUCB1:
		p = newUCB1(r.cfg.UCBConfidence)
	case config.BanditLinUCB:
		// Bias term plus up to three caller-supplied context features.
		p = newLinUCB(r.cfg.LinUCBAlpha, 4)
	default:
		p = newEpsilonGreedy(r.cfg.Epsilon, rand.New(rand.NewSource(r.cfg.Seed)))
	}
	r.policies[task] = p
	return p
}

// candidates filters and orders eligible arms for a task. The order is the
// deterministic tie-break: blended cost ascending, then p95 latency, then ID.
func (r *Router) candidates(task Task) []string {
	var out []string
	for id, arm := range r.arms {
		if len(r.cfg.ProviderAllowlist) > 0 && !slices.Contains(r.cfg.ProviderAllowlist, id) {
			continue
		}
		if task.Capability != "" && !slices.Contains(arm.Capabilities, task.Capability) {
			continue
		}
		if task.CostCeiling > 0 && blendedCost(arm) > task.CostCeiling {
			continue
		}
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := r.arms[out[i]], r.arms[out[j]]
		if ca, cb := blendedCost(a), blendedCost(b); ca != cb {
			return ca < cb
		}
		if a.P95LatencyMS != b.P95LatencyMS {
			return a.P95LatencyMS < b.P95LatencyMS
		}
		return out[i] < out[j]
	})

	// QUALITY_FIRST narrows eligible arms to the top-tier shortlist for
	// designated tasks, when any top-tier arm survived filtering.
	if r.cfg.Policy == config.RouterPolicyQualityFirst && slices.Contains(r.cfg.QualityFirstTasks, task.Name) {
		var top []string
		for _, id := range out {
			if r.arms[id].TopTier {
				top = append(top, id)
			}
		}
		if len(top) > 0 {
			out = top
		}
	}
	return out
}

func blendedCost(arm config.ProviderConfig) float64 {
	return arm.CostPer1KIn + arm.CostPer1KOut
}

// Select picks an arm for the task. Selection alone does not change bandit
// reward state; only Observe does.
func (r *Router) Select(task Task) (string, error) {
	cands := r.candidates(task)
	if len(cands) == 0 {
		return "", step.NewError(step.CategoryPolicy, "no eligible provider arms for task "+task.Name)
	}

	r.mu.Lock()
	armID := r.policy(task.Name).Select(cands, task.Features)
	r.mu.Unlock()

	if r.m != nil {
		r.m.RouterSelections.WithLabelValues(string(r.cfg.Policy), armID).Inc()
	}
	return armID, nil
}

// Observe feeds a routed outcome back into the bandit for the task.
func (r *Router) Observe(task Task, armID string, o Outcome) {
	reward := r.reward(o)
	r.mu.Lock()
	r.policy(task.Name).Update(armID, reward, task.Features)
	r.mu.Unlock()
	if r.m != nil {
		r.m.RouterRewards.WithLabelValues(armID).Observe(reward)
	}
}

// Reward normalization midpoints: a call costing costScale dollars or taking
// latencyScale ms scores 0.5 on its component.
const (
	costScale    = 0.01
	latencyScale = 2000
)

// reward computes the composite reward under the active policy's weights.
// Failures score the flat penalty regardless of weights.
func (r *Router) reward(o Outcome) float64 {
	if o.Failed {
		return -1
	}
	w := r.weights()
	costNorm := o.CostUSD / (o.CostUSD + costScale)
	latNorm := float64(o.LatencyMS) / (float64(o.LatencyMS) + latencyScale)
	return w.Quality*o.Quality + w.Cost*(1-costNorm) + w.Latency*(1-latNorm)
}

func (r *Router) weights() config.RewardWeights {
	if w, ok := r.cfg.Weights[r.cfg.Policy]; ok {
		return w
	}
	return config.DefaultRewardWeights()[r.cfg.Policy]
}

// Complete routes a completion, observes its outcome, and applies the
// high-stakes backstop: when the scored quality of a high-stakes result falls
// below the floor, one deterministic retry runs on the cheapest top-tier arm
// and the better-scoring of the two responses is returned. Every dispatched
// call appears in the returned attempts, with the winner marked Chosen, so
// callers can surface the full routing history in stage metadata.
func (r *Router) Complete(ctx context.Context, task Task, req llm.CompletionRequest, score func(*llm.CompletionResponse) float64) (*llm.CompletionResponse, []step.Attempt, error) {
	armID, err := r.Select(task)
	if err != nil {
		return nil, nil, err
	}

	resp, err := r.client.Complete(ctx, armID, r.arms[armID], req)
	if err != nil {
		r.Observe(task, armID, Outcome{Failed: true})
		return nil, []step.Attempt{{Arm: armID, Failed: true}}, err
	}

	quality := 0.5 // neutral when the caller does not score
	if score != nil {
		quality = score(resp)
	}
	r.Observe(task, armID, Outcome{Quality: quality, CostUSD: resp.CostUSD, LatencyMS: resp.LatencyMS})

	primary := step.Attempt{
		Arm: armID, Provider: resp.Provider, Model: resp.Model,
		Quality: quality, CostUSD: resp.CostUSD, LatencyMS: resp.LatencyMS,
	}

	if !task.HighStakes || quality >= highStakesQualityFloor || score == nil {
		primary.Chosen = true
		return resp, []step.Attempt{primary}, nil
	}

	backstopID := r.backstopArm(armID)
	if backstopID == "" {
		primary.Chosen = true
		return resp, []step.Attempt{primary}, nil
	}
	r.logger.Info("Quality backstop engaged",
		"task", task.Name, "primary", armID, "backstop", backstopID, "quality", quality)

	retryReq := req
	zero := 0.0
	retryReq.Temperature = &zero
	retry, err := r.client.Complete(ctx, backstopID, r.arms[backstopID], retryReq)
	if err != nil {
		r.Observe(task, backstopID, Outcome{Failed: true})
		primary.Chosen = true // primary result stands
		return resp, []step.Attempt{primary, {Arm: backstopID, Failed: true}}, nil
	}

	retryQuality := score(retry)
	r.Observe(task, backstopID, Outcome{Quality: retryQuality, CostUSD: retry.CostUSD, LatencyMS: retry.LatencyMS})

	backstop := step.Attempt{
		Arm: backstopID, Provider: retry.Provider, Model: retry.Model,
		Quality: retryQuality, CostUSD: retry.CostUSD, LatencyMS: retry.LatencyMS,
	}
	if retryQuality > quality {
		backstop.Chosen = true
		return retry, []step.Attempt{primary, backstop}, nil
	}
	primary.Chosen = true
	return resp, []step.Attempt{primary, backstop}, nil
}

// backstopArm returns the cheapest top-tier arm other than exclude, or any
// top-tier arm if exclude is the only one.
func (r *Router) backstopArm(exclude string) string {
	var ids []string
	for id, arm := range r.arms {
		if arm.TopTier {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ca, cb := blendedCost(r.arms[ids[i]]), blendedCost(r.arms[ids[j]]); ca != cb {
			return ca < cb
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		if id != exclude {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}
