package config

import (
	"fmt"
	"strconv"
	"strings"
)

// CheckpointCondition is a single field/op/value predicate evaluated against a
// stage's output fields.
type CheckpointCondition struct {
	Field string       `yaml:"field"`
	Op    CheckpointOp `yaml:"op"`
	Value any          `yaml:"value"`
}

// CheckpointRule short-circuits execution after the named stage when its
// condition matches. Depths restricts the rule to the listed pipeline depths;
// an empty list applies to all.
type CheckpointRule struct {
	Stage     string              `yaml:"stage"`
	When      CheckpointCondition `yaml:"when"`
	Action    CheckpointAction    `yaml:"action"`
	Depths    []string            `yaml:"depths,omitempty"`
	Reason    string              `yaml:"reason,omitempty"`
	ContentTy string              `yaml:"content_type,omitempty"`
}

// AppliesTo reports whether the rule is active for the given depth and
// content-type hint.
func (r CheckpointRule) AppliesTo(depth, contentType string) bool {
	if r.ContentTy != "" && r.ContentTy != contentType {
		return false
	}
	if len(r.Depths) == 0 {
		return true
	}
	for _, d := range r.Depths {
		if d == depth {
			return true
		}
	}
	return false
}

// Matches evaluates the condition against the stage's output fields. Missing
// fields and type mismatches never match: checkpoints fail open.
func (c CheckpointCondition) Matches(fields map[string]any) bool {
	raw, ok := fields[c.Field]
	if !ok {
		return false
	}

	if c.Op == OpContains {
		s, sok := raw.(string)
		want, wok := c.Value.(string)
		return sok && wok && strings.Contains(s, want)
	}

	if c.Op == OpEqual {
		if fmt.Sprintf("%v", raw) == fmt.Sprintf("%v", c.Value) {
			return true
		}
	}

	got, gok := toFloat(raw)
	want, wok := toFloat(c.Value)
	if !gok || !wok {
		return false
	}

	switch c.Op {
	case OpGreaterThan:
		return got > want
	case OpGreaterEqual:
		return got >= want
	case OpLessThan:
		return got < want
	case OpLessEqual:
		return got <= want
	case OpEqual:
		return got == want
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DefaultCheckpoints returns the built-in checkpoint table. Standard-depth
// runs skip downloads longer than four hours; every depth fails on blocked
// content flagged by the acquirer.
func DefaultCheckpoints() []CheckpointRule {
	return []CheckpointRule{
		{
			Stage:  "acquire",
			When:   CheckpointCondition{Field: "duration_s", Op: OpGreaterThan, Value: 14400},
			Action: CheckpointActionSkip,
			Depths: []string{"standard"},
			Reason: "duration above standard-depth limit",
		},
		{
			Stage:  "acquire",
			When:   CheckpointCondition{Field: "blocked", Op: OpEqual, Value: true},
			Action: CheckpointActionFail,
			Reason: "content blocked by policy",
		},
	}
}
