package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/contentlens/contentlens/pkg/analysis"
	"github.com/contentlens/contentlens/pkg/quality"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// Pipeline executes the staged DAG for one URL at a time. Safe for concurrent
// runs; all state lives in the Runtime's collaborators.
type Pipeline struct {
	rt     *Runtime
	logger *slog.Logger
}

// New creates the orchestrator over a fully-wired runtime.
func New(rt *Runtime) *Pipeline {
	return &Pipeline{
		rt:     rt,
		logger: slog.Default().With("component", "pipeline"),
	}
}

// Run executes the full pipeline for a URL at the given depth and returns the
// terminal StepResult. It never panics and never returns a malformed envelope.
func (p *Pipeline) Run(ctx context.Context, url string, depth Depth) step.Result {
	start := time.Now()

	tc, err := p.rt.Resolver.Current(ctx, "pipeline")
	if err != nil {
		res := step.Fail("pipeline", step.NewError(step.CategoryTenancy, err.Error()))
		p.recordRun(depth, res)
		return res
	}
	if tc.RequestID == "" {
		tc.RequestID = uuid.NewString()
	}
	ctx = tenancy.WithTenant(ctx, tc)

	req := tenancy.NewRequest(tc)
	_ = req.Activate(ctx)

	ctx, cancel := context.WithTimeout(ctx, depth.budget(p.rt.Settings.Pipeline))
	defer cancel()

	res := p.run(ctx, tc, url, depth, start)

	if res.Status == step.StatusFail {
		_ = req.Fail(ctx)
	} else {
		_ = req.Complete(ctx)
	}

	res.Metadata.Tenant = tc.TenantID
	res.Metadata.Workspace = tc.WorkspaceID
	res = res.WithLatency(time.Since(start))
	if res.Error != nil {
		res.Error.WithContext("tenant", tc.TenantID).
			WithContext("workspace", tc.WorkspaceID).
			WithContext("request_id", tc.RequestID)
	}
	p.recordRun(depth, res)
	return res
}

func (p *Pipeline) recordRun(depth Depth, res step.Result) {
	if p.rt.Metrics != nil {
		p.rt.Metrics.PipelineRuns.WithLabelValues(string(depth), string(res.Status)).Inc()
	}
}

// run drives the stage sequence. Any fail before the analysis fan-out is
// terminal and skips notify.
func (p *Pipeline) run(ctx context.Context, tc tenancy.TenantContext, url string, depth Depth, start time.Time) step.Result {
	// Stage 1: acquire.
	var acq *Acquisition
	acquireRes := p.runStage(ctx, tc, "acquire", func(ctx context.Context) step.Result {
		got, err := p.rt.Acquirer.Acquire(ctx, url)
		if err != nil {
			return step.FailFrom("acquire", step.CategoryNetwork, err)
		}
		acq = got
		return step.OK("acquire", map[string]any{
			"platform":   got.Platform,
			"title":      got.Title,
			"uploader":   got.Uploader,
			"duration_s": got.DurationS,
		})
	})
	if acquireRes.IsTerminalFailure() {
		return acquireRes
	}

	contentType := detectContentType(acq)

	// Stage 2: early-exit checkpoint A (post-download).
	if cp := p.evaluateCheckpoints("acquire", depth, contentType, checkpointFields(acq)); cp != nil {
		if cp.Status == step.StatusSkip {
			return p.finalizeSkip(tc, acq, *cp)
		}
		return *cp
	}

	// Stage 3: transcribe.
	var transcript *Transcript
	transcribeRes := p.runStage(ctx, tc, "transcribe", func(ctx context.Context) step.Result {
		ctx, cancel := context.WithTimeout(ctx, p.rt.Settings.Pipeline.TranscriptionTimeout)
		defer cancel()
		got, err := p.rt.Transcriber.Transcribe(ctx, acq, "")
		if err != nil {
			return step.FailFrom("transcribe", step.CategoryProcessing, err)
		}
		transcript = got
		return step.OK("transcribe", map[string]any{
			"language":   got.Language,
			"duration_s": got.DurationS,
			"segments":   len(got.Segments),
		})
	})
	if transcribeRes.IsTerminalFailure() {
		return transcribeRes
	}

	text := transcript.Text()

	// Stage 4: checkpoint B — a degenerate transcript takes the lightweight
	// path without even scoring.
	if text == "" {
		return p.lightweightFinalize(ctx, tc, acq, text, quality.Assessment{
			BypassReason: "empty transcript",
		}, depth, start)
	}

	// Stage 5: quality assessment.
	var assessment quality.Assessment
	qualityRes := p.runStage(ctx, tc, "quality", func(context.Context) step.Result {
		assessment = quality.Assess(text, p.rt.Settings.Quality)
		return step.OK("quality", map[string]any{
			"word_count":           assessment.WordCount,
			"sentence_count":       assessment.SentenceCount,
			"coherence_score":      assessment.CoherenceScore,
			"overall_score":        assessment.OverallScore,
			"metrics_passed":       assessment.MetricsPassed,
			"should_process_fully": assessment.ShouldProcessFully,
		})
	})
	if qualityRes.IsTerminalFailure() {
		return qualityRes
	}

	if p.rt.Settings.Quality.Enabled && !assessment.ShouldProcessFully {
		return p.lightweightFinalize(ctx, tc, acq, text, assessment, depth, start)
	}

	// Stage 7: analysis fan-out.
	analysisRes, toolResults := p.runAnalysis(ctx, tc, acq, text, contentType, depth)
	if analysisRes.IsTerminalFailure() {
		return analysisRes
	}

	// Stage 8: persist (vector always, graph at deep and beyond).
	memoryRes := p.persist(ctx, tc, acq, text, assessment, toolResults, depth)
	if memoryRes.IsTerminalFailure() {
		return memoryRes
	}

	// Stage 9: notify (fail-open).
	notifyRes := p.runStage(ctx, tc, "notify", func(ctx context.Context) step.Result {
		summary := p.buildSummary(tc, acq, depth, "full", assessment, toolResults, time.Since(start))
		if err := p.rt.Notifier.Send(ctx, summary); err != nil {
			p.logger.Warn("Notification failed", "error", err)
			return step.Skip("notify", "notifier error: "+err.Error())
		}
		return step.OK("notify", map[string]any{"sent": true})
	})

	return step.OK("pipeline", map[string]any{
		"processing_type": "full",
		"acquire":         acquireRes,
		"transcribe":      transcribeRes,
		"quality":         qualityRes,
		"analysis":        analysisRes,
		"memory":          memoryRes,
		"notify":          notifyRes,
	})
}

// toolChains returns the fan-out task chains for a depth. Tools inside one
// chain run serially (fact-check consumes claim extraction); chains run
// concurrently.
func toolChains(depth Depth) [][]string {
	chains := [][]string{
		{analysis.ToolSentiment},
		{analysis.ToolFallacy},
		{analysis.ToolClaims, analysis.ToolFactcheck},
	}
	if depth.atLeast(DepthDeep) {
		chains = append(chains, []string{analysis.ToolPerspective})
	}
	return chains
}

// runAnalysis executes the fan-out: chains run concurrently up to the
// configured parallelism, each under the shared deadline. A task's fail is
// captured into the merged result; only category=fatal cancels siblings.
func (p *Pipeline) runAnalysis(ctx context.Context, tc tenancy.TenantContext, acq *Acquisition, text, contentType string, depth Depth) (step.Result, map[string]step.Result) {
	results := make(map[string]step.Result)

	res := p.runStage(ctx, tc, "analysis", func(ctx context.Context) step.Result {
		g, gctx := errgroup.WithContext(ctx)
		limit := p.rt.Settings.Pipeline.MaxParallelAnalysis
		if limit < 1 {
			limit = 1
		}
		g.SetLimit(limit)

		var mu sync.Mutex
		var fatal *step.Result

		for _, chain := range toolChains(depth) {
			chain := chain
			g.Go(func() error {
				upstream := make(map[string]step.Result)
				for _, name := range chain {
					tool := p.rt.Registry.Get(name)
					if tool == nil {
						continue
					}
					in := analysis.Input{
						Transcript:  text,
						Title:       acq.Title,
						ContentType: contentType,
						Upstream:    upstream,
					}
					toolRes := p.runStage(gctx, tc, name, func(c context.Context) step.Result {
						return tool.Run(c, in)
					})

					mu.Lock()
					results[name] = toolRes
					mu.Unlock()
					upstream[name] = toolRes

					if toolRes.Status == step.StatusFail && toolRes.Error != nil && toolRes.Error.Category == step.CategoryFatal {
						mu.Lock()
						fatal = &toolRes
						mu.Unlock()
						return toolRes.Error // cancels sibling chains
					}
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return cancellationResult("analysis", err)
		}
		if fatal != nil {
			return *fatal
		}

		merged := make(map[string]any, len(results))
		for name, r := range results {
			merged[name] = r
		}
		return step.OK("analysis", merged)
	})
	return res, results
}
