package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/contentlens/contentlens/pkg/memory"
	"github.com/contentlens/contentlens/pkg/notify"
	"github.com/contentlens/contentlens/pkg/quality"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// summaryWordCount bounds the first-words summary on the lightweight path.
const summaryWordCount = 50

// lightweightFinalize is the bypass path: no analysis fan-out, a minimal
// memory record, a brief notification, and a terminal ok result.
func (p *Pipeline) lightweightFinalize(ctx context.Context, tc tenancy.TenantContext, acq *Acquisition, text string, assessment quality.Assessment, depth Depth, start time.Time) step.Result {
	summary := acq.Title
	if head := firstWords(text, summaryWordCount); head != "" {
		summary += ": " + head
	}

	memoryStored := false
	if err := ctx.Err(); err != nil {
		return cancellationResult("pipeline", err)
	}
	if err := p.storeMinimalRecord(ctx, tc, acq, summary, assessment); err != nil {
		p.logger.Warn("Lightweight memory write failed", "error", err)
	} else {
		memoryStored = true
	}

	p.runStage(ctx, tc, "notify", func(ctx context.Context) step.Result {
		s := p.buildSummary(tc, acq, depth, "lightweight", assessment, nil, time.Since(start))
		if err := p.rt.Notifier.Send(ctx, s); err != nil {
			p.logger.Warn("Notification failed", "error", err)
			return step.Skip("notify", "notifier error: "+err.Error())
		}
		return step.OK("notify", map[string]any{"sent": true})
	})

	return step.OK("pipeline", map[string]any{
		"processing_type":     "lightweight",
		"quality_score":       assessment.OverallScore,
		"bypass_reason":       assessment.BypassReason,
		"summary":             summary,
		"memory_stored":       memoryStored,
		"time_saved_estimate": timeSavedEstimate(acq.DurationS),
	})
}

// finalizeSkip terminates a run stopped by an early-exit checkpoint.
func (p *Pipeline) finalizeSkip(tc tenancy.TenantContext, acq *Acquisition, checkpoint step.Result) step.Result {
	reason, _ := checkpoint.Data["reason"].(string)
	p.logger.Info("Run skipped by checkpoint",
		"tenant", tc.TenantID, "title", acq.Title, "reason", reason)
	return step.Skip("pipeline", reason)
}

// persist writes the vector record (always) and the graph record (deep and
// experimental). Graph failures fail the pipeline only at experimental depth.
func (p *Pipeline) persist(ctx context.Context, tc tenancy.TenantContext, acq *Acquisition, text string, assessment quality.Assessment, toolResults map[string]step.Result, depth Depth) step.Result {
	return p.runStage(ctx, tc, "memory", func(ctx context.Context) step.Result {
		embedding, err := p.rt.Embedder.Embed(ctx, text)
		if err != nil {
			return step.FailFrom("memory", step.CategoryProcessing, err)
		}

		ns := tenancy.Namespace(tc, "analyses")
		record := memory.VectorRecord{
			ID:        tc.RequestID,
			Embedding: embedding,
			Payload: map[string]any{
				"title":         acq.Title,
				"platform":      acq.Platform,
				"overall_score": assessment.OverallScore,
				"tools":         toolNames(toolResults),
			},
		}
		if err := p.rt.Vector.Upsert(ctx, ns, []memory.VectorRecord{record}); err != nil {
			return step.FailFrom("memory", step.CategoryProcessing, err)
		}

		graphStored := false
		if depth.atLeast(DepthDeep) {
			if err := p.storeGraph(ctx, tc, acq, toolResults); err != nil {
				if depth == DepthExperimental {
					return step.FailFrom("memory", step.CategoryProcessing, err)
				}
				p.logger.Warn("Graph memory write failed", "error", err)
			} else {
				graphStored = true
			}
		}

		return step.OK("memory", map[string]any{
			"vector_stored": true,
			"graph_stored":  graphStored,
		})
	})
}

// storeGraph records the content node and one node per succeeded tool.
func (p *Pipeline) storeGraph(ctx context.Context, tc tenancy.TenantContext, acq *Acquisition, toolResults map[string]step.Result) error {
	ns := tenancy.Namespace(tc, "graph")
	now := time.Now().UTC()

	root := memory.Node{
		ID:   tc.RequestID,
		Kind: "content",
		At:   now,
		Props: map[string]any{
			"title":    acq.Title,
			"platform": acq.Platform,
		},
	}
	if err := p.rt.Graph.AddNode(ctx, ns, root); err != nil {
		return err
	}
	for name, res := range toolResults {
		if res.Status != step.StatusOK {
			continue
		}
		node := memory.Node{ID: tc.RequestID + ":" + name, Kind: "analysis", At: now}
		if err := p.rt.Graph.AddNode(ctx, ns, node); err != nil {
			return err
		}
		if err := p.rt.Graph.AddEdge(ctx, ns, memory.Edge{
			From: root.ID, To: node.ID, Relation: name, At: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// storeMinimalRecord persists the lightweight path's summary-only record.
func (p *Pipeline) storeMinimalRecord(ctx context.Context, tc tenancy.TenantContext, acq *Acquisition, summary string, assessment quality.Assessment) error {
	embedding, err := p.rt.Embedder.Embed(ctx, summary)
	if err != nil {
		return err
	}
	return p.rt.Vector.Upsert(ctx, tenancy.Namespace(tc, "analyses"), []memory.VectorRecord{{
		ID:        tc.RequestID,
		Embedding: embedding,
		Payload: map[string]any{
			"title":           acq.Title,
			"processing_type": "lightweight",
			"overall_score":   assessment.OverallScore,
			"summary":         summary,
		},
	}})
}

// buildSummary assembles the notifier payload for either path.
func (p *Pipeline) buildSummary(tc tenancy.TenantContext, acq *Acquisition, depth Depth, processingType string, assessment quality.Assessment, toolResults map[string]step.Result, elapsed time.Duration) notify.Summary {
	var cost float64
	for _, res := range toolResults {
		cost += res.Metadata.CostUSD
	}
	highlights := toolNames(toolResults)

	s := notify.Summary{
		RequestID:      tc.RequestID,
		Tenant:         tc.TenantID,
		Workspace:      tc.WorkspaceID,
		Title:          acq.Title,
		Depth:          string(depth),
		Status:         "ok",
		ProcessingType: processingType,
		QualityScore:   assessment.OverallScore,
		BypassReason:   assessment.BypassReason,
		CostUSD:        cost,
		DurationMS:     elapsed.Milliseconds(),
	}
	if len(highlights) > 0 {
		s.Highlights = "Completed analyses: " + strings.Join(highlights, ", ")
	}
	return s
}

// timeSavedEstimate reports roughly how long the skipped full analysis would
// have taken, in seconds: a fixed fan-out floor plus a share of media length.
func timeSavedEstimate(durationS float64) string {
	est := 45 + durationS*0.05
	return fmt.Sprintf("%.0fs", est)
}

func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func toolNames(toolResults map[string]step.Result) []string {
	names := make([]string, 0, len(toolResults))
	for name, res := range toolResults {
		if res.Status == step.StatusOK {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
