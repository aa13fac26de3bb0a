package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contentlens/contentlens/pkg/pipeline"
	"github.com/contentlens/contentlens/pkg/queue"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// AnalyzeRequest is the POST /api/v1/analyze body.
type AnalyzeRequest struct {
	URL        string `json:"url" binding:"required"`
	Depth      string `json:"depth"`
	SourceType string `json:"source_type"`
	ExternalID string `json:"external_id"`
	Priority   int    `json:"priority"`
}

// JobResponse is the job representation returned by the API.
type JobResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	URL         string `json:"url"`
	Depth       string `json:"depth"`
	Priority    int    `json:"priority,omitempty"`
	Tenant      string `json:"tenant"`
	Workspace   string `json:"workspace"`
	Attempts    int    `json:"attempts,omitempty"`
	Error       string `json:"error,omitempty"`
	Result      any    `json:"result,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// tenantFrom extracts the tenant identity from request headers. In strict
// tenancy mode a missing tenant header rejects the request.
func (s *Server) tenantFrom(c *gin.Context) (tenancy.TenantContext, bool) {
	tc := tenancy.TenantContext{
		TenantID:    c.GetHeader(HeaderTenant),
		WorkspaceID: c.GetHeader(HeaderWorkspace),
	}
	if tc.TenantID == "" {
		if s.cfg.Tenancy.Strict {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderTenant + " header"})
			return tc, false
		}
		tc.TenantID = tenancy.DefaultTenant
	}
	if tc.WorkspaceID == "" {
		tc.WorkspaceID = tenancy.DefaultWorkspace
	}
	return tc, true
}

// submitAnalysis handles POST /api/v1/analyze. Enqueueing is dedup-aware: a
// live job for the same content returns 200 with the existing job instead of
// creating a duplicate.
func (s *Server) submitAnalysis(c *gin.Context) {
	tc, ok := s.tenantFrom(c)
	if !ok {
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}
	depth, ok := pipeline.ParseDepth(req.Depth)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown depth: " + req.Depth})
		return
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = "api"
	}
	externalID := req.ExternalID
	if externalID == "" {
		externalID = req.URL
	}

	job, created, err := s.store.Enqueue(c.Request.Context(), &queue.Job{
		Tenant:     tc.TenantID,
		Workspace:  tc.WorkspaceID,
		SourceType: sourceType,
		ExternalID: externalID,
		URL:        req.URL,
		Depth:      string(depth),
		Priority:   req.Priority,
	})
	if err != nil {
		s.logger.Error("Enqueue failed", "tenant", tc.TenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, jobResponse(job))
}

// getJob handles GET /api/v1/jobs/:id. Jobs are tenant-scoped: asking for
// another tenant's job is indistinguishable from a missing job.
func (s *Server) getJob(c *gin.Context) {
	tc, ok := s.tenantFrom(c)
	if !ok {
		return
	}

	job, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if job.Tenant != tc.TenantID || job.Workspace != tc.WorkspaceID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, jobResponse(job))
}

// cancelJob handles POST /api/v1/jobs/:id/cancel. Pending jobs cancel in the
// store; in-progress jobs cancel through the pool's context registry when
// they run on this replica.
func (s *Server) cancelJob(c *gin.Context) {
	tc, ok := s.tenantFrom(c)
	if !ok {
		return
	}
	jobID := c.Param("id")

	job, err := s.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if job.Tenant != tc.TenantID || job.Workspace != tc.WorkspaceID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	switch job.Status {
	case queue.StatusPending:
		if err := s.store.CancelPending(c.Request.Context(), jobID); err != nil {
			if errors.Is(err, queue.ErrNotCancellable) {
				// The job was claimed between Get and CancelPending.
				c.JSON(http.StatusConflict, gin.H{"error": "job already started"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": string(queue.StatusCancelled)})
	case queue.StatusInProgress:
		if !s.pool.CancelJob(jobID) {
			// Running on a different replica; its own pool must cancel it.
			c.JSON(http.StatusConflict, gin.H{"error": "job is running on another replica"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "cancelling"})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "job is already " + string(job.Status)})
	}
}

func jobResponse(job *queue.Job) JobResponse {
	resp := JobResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		URL:       job.URL,
		Depth:     job.Depth,
		Priority:  job.Priority,
		Tenant:    job.Tenant,
		Workspace: job.Workspace,
		Attempts:  job.Attempts,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(job.Result) > 0 {
		resp.Result = json.RawMessage(job.Result)
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
