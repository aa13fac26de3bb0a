// Package api exposes the HTTP surface: job submission, job inspection,
// cancellation, health, and metrics.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/queue"
)

// Tenant identity headers. Workspace defaults to "default" when absent.
const (
	HeaderTenant    = "X-Tenant-ID"
	HeaderWorkspace = "X-Workspace-ID"
)

// JobCanceller is the pool subset used for cancelling in-progress jobs.
type JobCanceller interface {
	CancelJob(jobID string) bool
	Health() *queue.PoolHealth
}

// Server wires the HTTP handlers to the queue.
type Server struct {
	store  queue.Store
	pool   JobCanceller
	cfg    *config.Settings
	gather prometheus.Gatherer
	logger *slog.Logger
}

// NewServer creates the API server. gather may be nil to disable /metrics.
func NewServer(store queue.Store, pool JobCanceller, cfg *config.Settings, gather prometheus.Gatherer) *Server {
	return &Server{
		store:  store,
		pool:   pool,
		cfg:    cfg,
		gather: gather,
		logger: slog.Default().With("component", "api"),
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	if s.gather != nil && s.cfg.Observability.PrometheusEndpoint {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/analyze", s.submitAnalysis)
		v1.GET("/jobs/:id", s.getJob)
		v1.POST("/jobs/:id/cancel", s.cancelJob)
	}
	return r
}

// health reports pool health; an unhealthy pool returns 503 so orchestrators
// can rotate the replica.
func (s *Server) health(c *gin.Context) {
	h := s.pool.Health()
	status := http.StatusOK
	if !h.IsHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}
