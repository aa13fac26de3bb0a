package queue

import (
	"context"
	"encoding/json"

	"github.com/contentlens/contentlens/pkg/pipeline"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// PipelineExecutor runs one pipeline per job. The job's tenant identity is
// bound to the context before the run so every stage operates in the right
// namespace.
type PipelineExecutor struct {
	Pipeline *pipeline.Pipeline
}

// Execute runs the analysis pipeline for the job and maps the terminal
// envelope to a queue status.
func (e *PipelineExecutor) Execute(ctx context.Context, job *Job) *ExecutionResult {
	depth, ok := pipeline.ParseDepth(job.Depth)
	if !ok {
		return &ExecutionResult{
			Status: StatusFailed,
			Err:    step.NewError(step.CategoryValidation, "unknown depth: "+job.Depth),
		}
	}

	ctx = tenancy.WithTenant(ctx, tenancy.TenantContext{
		TenantID:    job.Tenant,
		WorkspaceID: job.Workspace,
		RequestID:   job.ID,
	})

	res := e.Pipeline.Run(ctx, job.URL, depth)

	payload, err := json.Marshal(res)
	if err != nil {
		// The envelope is plain data; a marshal failure means a programming
		// error upstream.
		return &ExecutionResult{Status: StatusFailed, Err: err}
	}

	out := &ExecutionResult{Status: statusFor(res), Result: payload}
	if res.Error != nil {
		out.Err = res.Error
	}
	return out
}

// statusFor maps a pipeline envelope to the job's terminal status.
func statusFor(res step.Result) Status {
	switch res.Status {
	case step.StatusFail:
		if res.Error != nil {
			switch res.Error.Category {
			case step.CategoryCancelled:
				return StatusCancelled
			case step.CategoryTimeout:
				return StatusTimedOut
			}
		}
		return StatusFailed
	default:
		// ok, skip, and uncertain all count as completed work.
		return StatusCompleted
	}
}
