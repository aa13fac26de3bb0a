package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
	"github.com/contentlens/contentlens/pkg/tracing"
)

// runStage executes one stage with the uniform wrapper: span, latency metric,
// failure accounting, tenant stamping, and panic containment. A panic becomes
// fail{category=processing} carrying a trace id that keys the logged stack.
func (p *Pipeline) runStage(ctx context.Context, tc tenancy.TenantContext, name string, fn func(context.Context) step.Result) (res step.Result) {
	ctx, span := tracing.StartStage(ctx, name, tc.TenantID, tc.WorkspaceID)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			traceID := uuid.NewString()
			p.logger.Error("Stage panicked",
				"stage", name,
				"trace_id", traceID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			res = step.Fail(name, step.NewError(step.CategoryProcessing,
				fmt.Sprintf("stage %s panicked: %v", name, r)).
				WithContext("trace_id", traceID))
		}

		res.Metadata.Step = name
		res.Metadata.Tenant = tc.TenantID
		res.Metadata.Workspace = tc.WorkspaceID
		if res.Metadata.LatencyMS == 0 {
			res = res.WithLatency(time.Since(start))
		}

		if p.rt.Metrics != nil {
			p.rt.Metrics.StageLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if res.Status == step.StatusFail && res.Error != nil {
				p.rt.Metrics.PipelineFailures.WithLabelValues(name, string(res.Error.Category)).Inc()
			}
		}
		if res.Status == step.StatusFail && res.Error != nil {
			tracing.AddEvent(ctx, "stage.failed",
				attribute.String("stage", name),
				attribute.String("category", string(res.Error.Category)))
			p.logger.Warn("Stage failed",
				"stage", name,
				"category", string(res.Error.Category),
				"error", res.Error.Message)
		}
	}()

	// Cancellation observed before the stage body runs is reported uniformly.
	if err := ctx.Err(); err != nil {
		return cancellationResult(name, err)
	}

	return fn(ctx)
}

// cancellationResult maps a context error to the matching failure category.
func cancellationResult(stage string, err error) step.Result {
	if err == context.DeadlineExceeded {
		return step.Fail(stage, step.NewError(step.CategoryTimeout, "request deadline exceeded"))
	}
	return step.Fail(stage, step.NewError(step.CategoryCancelled, "request cancelled"))
}
