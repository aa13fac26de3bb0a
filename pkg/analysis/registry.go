// Package analysis defines the static registry of analysis tools the pipeline
// fans out over, plus the LLM-backed default tools. Tools receive explicit,
// immutable inputs; there is no shared mutable context between them.
package analysis

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/contentlens/contentlens/pkg/step"
)

// Input is the typed snapshot handed to every tool. Upstream carries merged
// results of tools the orchestrator sequenced earlier (fact-check reads the
// claim extractor's output from it).
type Input struct {
	Transcript  string
	Title       string
	ContentType string
	Upstream    map[string]step.Result
}

// Tool is one analysis task. Implementations must be safe for concurrent use.
type Tool interface {
	// Name keys the tool in the registry and in merged results.
	Name() string

	// Capabilities tags the tool for capability-based filtering.
	Capabilities() []string

	// Run executes the analysis. Errors are reported inside the StepResult,
	// never panicked or returned out of band.
	Run(ctx context.Context, in Input) step.Result
}

// Registry is a static, name-keyed tool registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithCapability returns names of tools carrying the capability tag, sorted.
func (r *Registry) WithCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, t := range r.tools {
		if slices.Contains(t.Capabilities(), capability) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
