// Package tenancy provides per-request tenant identity, context propagation,
// and the namespace key derivation every stateful collaborator must use.
package tenancy

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/contentlens/contentlens/pkg/metrics"
	"github.com/contentlens/contentlens/pkg/tracing"
)

// ErrMissingTenant indicates the request context carries no tenant identity.
// In strict mode this is fatal for the request.
var ErrMissingTenant = errors.New("no tenant context in request")

// Default tenant identity used by non-strict fallback.
const (
	DefaultTenant    = "default"
	DefaultWorkspace = "default"
)

// TenantContext is the immutable per-request identity. All namespaced keys and
// observability labels derive from it.
type TenantContext struct {
	TenantID    string
	WorkspaceID string
	RequestID   string
}

type contextKey struct{}

// WithTenant associates a tenant context with ctx.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext extracts the tenant context, reporting whether one was present.
func FromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(contextKey{}).(TenantContext)
	return tc, ok
}

// Resolver resolves the current tenant according to the configured strictness.
type Resolver struct {
	Strict  bool
	Metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResolver creates a tenant resolver. m may be nil (fallbacks uncounted).
func NewResolver(strict bool, m *metrics.Metrics) *Resolver {
	return &Resolver{
		Strict:  strict,
		Metrics: m,
		logger:  slog.Default().With("component", "tenancy"),
	}
}

// Current returns the tenant context for the request. In strict mode a missing
// context is an error; otherwise the default tenant is substituted, a warning
// logged, and tenancy_fallback_total incremented for the calling component.
func (r *Resolver) Current(ctx context.Context, component string) (TenantContext, error) {
	if tc, ok := FromContext(ctx); ok {
		return tc, nil
	}
	if r.Strict {
		return TenantContext{}, ErrMissingTenant
	}
	r.logger.Warn("Missing tenant context, using default tenant", "component", component)
	if r.Metrics != nil {
		r.Metrics.TenancyFallbacks.WithLabelValues(component).Inc()
	}
	return TenantContext{TenantID: DefaultTenant, WorkspaceID: DefaultWorkspace}, nil
}

// sanitize replaces characters that would be ambiguous inside a namespaced key.
var sanitizer = strings.NewReplacer(
	":", "__",
	"/", "__",
	" ", "__",
	"\t", "__",
	"\n", "__",
)

// Sanitize returns the component with separator characters replaced by "__".
func Sanitize(part string) string {
	return sanitizer.Replace(part)
}

// Namespace derives the "tenant:workspace:collection" key for a collection.
// The two top-level colons are the only unescaped separators in the result.
func Namespace(tc TenantContext, collection string) string {
	return Sanitize(tc.TenantID) + ":" + Sanitize(tc.WorkspaceID) + ":" + Sanitize(collection)
}

// State is the per-request lifecycle state. Only ACTIVE permits side effects.
type State string

// Request lifecycle states.
const (
	StateNew    State = "NEW"
	StateActive State = "ACTIVE"
	StateDone   State = "DONE"
	StateFailed State = "FAILED"
)

// Request tracks the lifecycle of one tenant-scoped request. Transitions are
// recorded as span events on the request's trace.
type Request struct {
	Tenant TenantContext
	state  State
}

// NewRequest creates a request in the NEW state.
func NewRequest(tc TenantContext) *Request {
	return &Request{Tenant: tc, state: StateNew}
}

// State returns the current lifecycle state.
func (r *Request) State() State { return r.state }

// Activate moves NEW -> ACTIVE. Side effects are permitted only afterwards.
func (r *Request) Activate(ctx context.Context) error {
	return r.transition(ctx, StateNew, StateActive)
}

// Complete moves ACTIVE -> DONE.
func (r *Request) Complete(ctx context.Context) error {
	return r.transition(ctx, StateActive, StateDone)
}

// Fail moves ACTIVE -> FAILED.
func (r *Request) Fail(ctx context.Context) error {
	return r.transition(ctx, StateActive, StateFailed)
}

func (r *Request) transition(ctx context.Context, from, to State) error {
	if r.state != from {
		return errors.New("invalid tenancy state transition: " + string(r.state) + " -> " + string(to))
	}
	r.state = to
	tracing.AddEvent(ctx, "tenancy.state",
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("request_id", r.Tenant.RequestID),
	)
	return nil
}
