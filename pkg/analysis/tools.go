package analysis

import (
	"context"
	"time"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/llm"
	"github.com/contentlens/contentlens/pkg/quality"
	"github.com/contentlens/contentlens/pkg/router"
	"github.com/contentlens/contentlens/pkg/step"
)

// Canonical tool names. The orchestrator and result consumers key on these.
const (
	ToolSentiment   = "sentiment"
	ToolFallacy     = "fallacy"
	ToolClaims      = "claims"
	ToolFactcheck   = "factcheck"
	ToolPerspective = "perspective"
)

// llmTool is a prompt-templated tool backed by a routed completion.
type llmTool struct {
	name         string
	capabilities []string
	task         router.Task
	completer    *Completer
	prompt       func(in Input) (string, bool)
	score        func(*llm.CompletionResponse) float64
}

func (t *llmTool) Name() string           { return t.name }
func (t *llmTool) Capabilities() []string { return t.capabilities }

func (t *llmTool) Run(ctx context.Context, in Input) step.Result {
	start := time.Now()

	prompt, ok := t.prompt(in)
	if !ok {
		return step.Skip(t.name, "required upstream output missing")
	}

	resp, attempts, info, err := t.completer.Complete(ctx, t.task, prompt, t.score)
	if err != nil {
		return step.FailFrom(t.name, step.CategoryProviderError, err).WithLatency(time.Since(start))
	}

	res := step.OK(t.name, map[string]any{"text": resp.Content})
	res.Metadata.Provider = resp.Provider
	res.Metadata.Model = resp.Model
	res.Metadata.CostUSD = resp.CostUSD
	res.Metadata.Retries = resp.Retries
	res.Metadata.Cache = &info
	if len(attempts) > 1 {
		// The quality backstop dispatched more than one call; list them all
		// and account for the full spend, not just the winner's.
		res.Metadata.Attempts = attempts
		total := 0.0
		for _, a := range attempts {
			total += a.CostUSD
		}
		res.Metadata.CostUSD = total
	}
	return res.WithLatency(time.Since(start))
}

// RegisterDefaults installs the built-in LLM-backed tools. qcfg feeds the
// deterministic evaluator used to score high-stakes results for the router's
// quality backstop.
func RegisterDefaults(reg *Registry, completer *Completer, qcfg config.QualityConfig) {
	evaluate := func(resp *llm.CompletionResponse) float64 {
		return quality.Assess(resp.Content, qcfg).OverallScore
	}

	reg.Register(&llmTool{
		name:         ToolSentiment,
		capabilities: []string{"analysis"},
		task:         router.Task{Name: "sentiment", Capability: "analysis"},
		completer:    completer,
		prompt: func(in Input) (string, bool) {
			return "Analyze the overall sentiment, dominant topics, and key terms of this transcript. " +
				"Report sentiment as positive, negative, or mixed with a short justification.\n\n" + in.Transcript, true
		},
	})

	reg.Register(&llmTool{
		name:         ToolFallacy,
		capabilities: []string{"analysis"},
		task:         router.Task{Name: "fallacy", Capability: "analysis"},
		completer:    completer,
		prompt: func(in Input) (string, bool) {
			return "Identify logical fallacies in this transcript. For each, name the fallacy, " +
				"quote the passage, and explain the flaw in one sentence.\n\n" + in.Transcript, true
		},
	})

	reg.Register(&llmTool{
		name:         ToolClaims,
		capabilities: []string{"analysis"},
		task:         router.Task{Name: "claims", Capability: "analysis"},
		completer:    completer,
		prompt: func(in Input) (string, bool) {
			return "Extract the factual claims made in this transcript as a numbered list. " +
				"Only include claims that are verifiable in principle.\n\n" + in.Transcript, true
		},
	})

	// Fact-check is high-stakes: low-quality results trigger the router's
	// deterministic top-tier retry. It consumes the claim extractor's output.
	reg.Register(&llmTool{
		name:         ToolFactcheck,
		capabilities: []string{"verification"},
		task:         router.Task{Name: "verification", Capability: "factcheck", HighStakes: true},
		completer:    completer,
		score:        evaluate,
		prompt: func(in Input) (string, bool) {
			claims, ok := in.Upstream[ToolClaims]
			if !ok || claims.Status != step.StatusOK {
				return "", false
			}
			text, _ := claims.Data["text"].(string)
			if text == "" {
				return "", false
			}
			return "Fact-check each of these claims. For each, state whether it is supported, " +
				"contradicted, or unverifiable, with reasoning.\n\n" + text, true
		},
	})

	reg.Register(&llmTool{
		name:         ToolPerspective,
		capabilities: []string{"synthesis"},
		task:         router.Task{Name: "perspective", Capability: "analysis"},
		completer:    completer,
		prompt: func(in Input) (string, bool) {
			return "Synthesize the distinct perspectives presented in this transcript and note " +
				"credible viewpoints that are absent.\n\n" + in.Transcript, true
		},
	})
}
