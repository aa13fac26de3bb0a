package pipeline

import (
	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/step"
)

// checkpointFields flattens an acquisition into the field map checkpoint
// predicates evaluate against.
func checkpointFields(acq *Acquisition) map[string]any {
	fields := map[string]any{
		"platform":   acq.Platform,
		"title":      acq.Title,
		"uploader":   acq.Uploader,
		"duration_s": acq.DurationS,
	}
	for k, v := range acq.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	return fields
}

// evaluateCheckpoints runs the configured early-exit rules for one stage.
// Returns a terminal result when a rule matches, nil to continue. Predicates
// fail open: a rule that cannot evaluate never stops the run.
func (p *Pipeline) evaluateCheckpoints(stage string, depth Depth, contentType string, fields map[string]any) *step.Result {
	for _, rule := range p.rt.Settings.Checkpoints {
		if rule.Stage != stage || !rule.AppliesTo(string(depth), contentType) {
			continue
		}
		if !rule.When.Matches(fields) {
			continue
		}

		reason := rule.Reason
		if reason == "" {
			reason = "checkpoint matched at stage " + stage
		}

		var res step.Result
		switch rule.Action {
		case config.CheckpointActionFail:
			res = step.Fail(stage, step.NewError(step.CategoryPolicy, reason))
		default:
			res = step.Skip(stage, reason)
		}
		p.logger.Info("Early-exit checkpoint matched",
			"stage", stage, "action", string(rule.Action), "reason", reason)
		return &res
	}
	return nil
}
