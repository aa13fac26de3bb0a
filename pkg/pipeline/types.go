// Package pipeline implements the staged content-analysis orchestrator: a
// fixed DAG of stages executed under one tenant context, one deadline, and one
// cancellation token, returning a single final StepResult.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/contentlens/contentlens/pkg/analysis"
	"github.com/contentlens/contentlens/pkg/cache"
	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/memory"
	"github.com/contentlens/contentlens/pkg/metrics"
	"github.com/contentlens/contentlens/pkg/notify"
	"github.com/contentlens/contentlens/pkg/router"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// Depth selects which optional stages participate in a run.
type Depth string

// Processing depths.
const (
	DepthStandard     Depth = "standard"
	DepthDeep         Depth = "deep"
	DepthExperimental Depth = "experimental"
)

// ParseDepth validates a depth string, defaulting empty to standard.
func ParseDepth(s string) (Depth, bool) {
	switch Depth(s) {
	case DepthStandard, DepthDeep, DepthExperimental:
		return Depth(s), true
	case "":
		return DepthStandard, true
	default:
		return "", false
	}
}

// atLeast reports whether d includes the optional stages of min.
func (d Depth) atLeast(min Depth) bool {
	rank := map[Depth]int{DepthStandard: 0, DepthDeep: 1, DepthExperimental: 2}
	return rank[d] >= rank[min]
}

// budget returns the request deadline for a depth.
func (d Depth) budget(cfg config.PipelineConfig) time.Duration {
	if cfg.RequestBudgetMS > 0 {
		return time.Duration(cfg.RequestBudgetMS) * time.Millisecond
	}
	switch d {
	case DepthDeep:
		return cfg.DeepTimeout
	case DepthExperimental:
		return cfg.ExperimentalTimeout
	default:
		return cfg.StandardTimeout
	}
}

// Acquisition is the acquire stage's output.
type Acquisition struct {
	Platform  string         `json:"platform"`
	LocalPath string         `json:"local_path,omitempty"`
	Title     string         `json:"title"`
	Uploader  string         `json:"uploader,omitempty"`
	DurationS float64        `json:"duration_s"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Segment is one timed span of a transcript.
type Segment struct {
	Text       string  `json:"text"`
	StartS     float64 `json:"start_s"`
	EndS       float64 `json:"end_s"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the transcriber's output. Immutable once returned.
type Transcript struct {
	Segments  []Segment `json:"segments"`
	Language  string    `json:"language"`
	SourceURL string    `json:"source_url"`
	DurationS float64   `json:"duration_s"`
}

// Text joins all segment text.
func (t *Transcript) Text() string {
	parts := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		parts[i] = s.Text
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Acquirer resolves a URL to downloadable content and its metadata.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (*Acquisition, error)
}

// Transcriber produces a transcript from acquired media.
type Transcriber interface {
	Transcribe(ctx context.Context, acq *Acquisition, language string) (*Transcript, error)
}

// Runtime aggregates every collaborator the orchestrator needs. There is no
// global state: one Runtime is constructed at startup and torn down at
// shutdown.
type Runtime struct {
	Settings    *config.Settings
	Metrics     *metrics.Metrics
	Resolver    *tenancy.Resolver
	Acquirer    Acquirer
	Transcriber Transcriber
	Registry    *analysis.Registry
	Router      *router.Router
	Cache       *cache.Cache
	Embedder    cache.Embedder
	Vector      memory.VectorMemory
	Graph       memory.GraphMemory
	Notifier    notify.Notifier
}
