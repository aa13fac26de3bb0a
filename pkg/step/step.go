// Package step defines the uniform result envelope returned by every pipeline
// stage and by the pipeline as a whole.
package step

import (
	"errors"
	"time"
)

// Status is the terminal state of a stage execution.
type Status string

// Stage status constants.
const (
	StatusOK        Status = "ok"
	StatusSkip      Status = "skip"
	StatusFail      Status = "fail"
	StatusUncertain Status = "uncertain"
)

// CacheInfo describes how the cache participated in a stage, if at all.
type CacheInfo struct {
	Hit        bool    `json:"hit"`
	Kind       string  `json:"kind,omitempty"` // "exact" or "semantic"
	Similarity float64 `json:"similarity,omitempty"`
}

// Attempt records one dispatched completion within a stage. A stage normally
// has one; the quality backstop produces two, and both are listed so the
// caller can see what the retry cost and what it gained.
type Attempt struct {
	Arm       string  `json:"arm"`
	Provider  string  `json:"provider,omitempty"`
	Model     string  `json:"model,omitempty"`
	Quality   float64 `json:"quality"`
	CostUSD   float64 `json:"cost_usd"`
	LatencyMS int64   `json:"latency_ms"`
	Chosen    bool    `json:"chosen"`
	Failed    bool    `json:"failed,omitempty"`
}

// Metadata carries per-stage bookkeeping. Tenant and Workspace are always set
// by the orchestrator; provider/model/cost only apply to LLM-backed stages.
// Attempts is populated when more than one completion served the stage.
type Metadata struct {
	Step      string     `json:"step"`
	LatencyMS int64      `json:"latency_ms"`
	Tenant    string     `json:"tenant"`
	Workspace string     `json:"workspace"`
	Provider  string     `json:"provider,omitempty"`
	Model     string     `json:"model,omitempty"`
	CostUSD   float64    `json:"cost_usd,omitempty"`
	Cache     *CacheInfo `json:"cache,omitempty"`
	Retries   int        `json:"retries,omitempty"`
	Attempts  []Attempt  `json:"attempts,omitempty"`
}

// Result is the universal stage envelope.
//
// Invariant: status ok|uncertain implies Data is populated and Error is nil;
// status fail implies Error is populated. A skip may carry a "reason" in Data.
type Result struct {
	Status   Status         `json:"status"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata Metadata       `json:"metadata"`
	Error    *Error         `json:"error,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// OK builds a successful result for the named stage.
func OK(stage string, data map[string]any) Result {
	return Result{
		Status:   StatusOK,
		Data:     data,
		Metadata: Metadata{Step: stage},
	}
}

// Uncertain builds a result whose payload exists but whose quality is unknown.
func Uncertain(stage string, data map[string]any) Result {
	return Result{
		Status:   StatusUncertain,
		Data:     data,
		Metadata: Metadata{Step: stage},
	}
}

// Skip builds a skipped result with a human-readable reason.
func Skip(stage, reason string) Result {
	return Result{
		Status:   StatusSkip,
		Data:     map[string]any{"reason": reason},
		Metadata: Metadata{Step: stage},
	}
}

// Fail builds a failed result carrying a taxonomy error.
func Fail(stage string, err *Error) Result {
	return Result{
		Status:   StatusFail,
		Metadata: Metadata{Step: stage},
		Error:    err,
	}
}

// FailFrom classifies a plain error into the taxonomy and wraps it. If err is
// already a *Error it is carried verbatim (categories are never rewritten).
func FailFrom(stage string, category Category, err error) Result {
	var stepErr *Error
	if errors.As(err, &stepErr) {
		return Fail(stage, stepErr)
	}
	return Fail(stage, NewError(category, err.Error()))
}

// IsTerminalFailure reports whether the result should stop the pipeline when
// produced by a pre-fan-out stage.
func (r Result) IsTerminalFailure() bool {
	return r.Status == StatusFail
}

// WithLatency stamps the stage latency and returns the result for chaining.
func (r Result) WithLatency(d time.Duration) Result {
	r.Metadata.LatencyMS = d.Milliseconds()
	return r
}

// Validate checks the envelope exclusivity invariant.
func (r Result) Validate() error {
	switch r.Status {
	case StatusOK, StatusUncertain:
		if len(r.Data) == 0 {
			return errors.New("status " + string(r.Status) + " requires populated data")
		}
		if r.Error != nil {
			return errors.New("status " + string(r.Status) + " must not carry an error")
		}
	case StatusFail:
		if r.Error == nil {
			return errors.New("status fail requires an error")
		}
	case StatusSkip:
		// reason in data is optional
	default:
		return errors.New("unknown status: " + string(r.Status))
	}
	return nil
}
