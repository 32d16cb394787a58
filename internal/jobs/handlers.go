package jobs

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for job queue endpoints
type GinHandlers struct {
	queue *Queue
}

// NewGinHandlers creates a new set of HTTP handlers for job queue endpoints
func NewGinHandlers(queue *Queue) *GinHandlers {
	return &GinHandlers{queue: queue}
}

// ListJobsHandler handles GET requests for recent jobs
func (h *GinHandlers) ListJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		includeArchived := c.Query("include_archived") == "true"
		all, err := h.queue.List(includeArchived, limit)
		response.Handle(c, all, err)
	}
}

// GetJobHandler handles GET requests for one job
func (h *GinHandlers) GetJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, _ := h.lookupJob(c)
		if job == nil {
			return
		}
		response.Success(c, job)
	}
}

// RerunJobHandler handles POST requests to rerun a terminal job. The original
// is archived and a fresh copy is queued.
func (h *GinHandlers) RerunJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, _ := h.lookupJob(c)
		if job == nil {
			return
		}
		fresh, err := h.queue.Rerun(job)
		if err == ErrNotRerunnable {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, fresh, err)
	}
}

// ArchiveJobHandler handles POST requests to archive a job
func (h *GinHandlers) ArchiveJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, _ := h.lookupJob(c)
		if job == nil {
			return
		}
		if err := h.queue.Archive(job); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, job)
	}
}

type enqueueRequest struct {
	JobType string          `json:"job_type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
	IfIdle  bool            `json:"if_idle"`
}

// EnqueueJobHandler handles POST requests to queue a background job. The
// payload is validated against the job type before anything is stored.
func (h *GinHandlers) EnqueueJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req enqueueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		payload, err := DecodePayload(req.JobType, req.Payload)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		var job *Job
		if req.IfIdle {
			job, err = h.queue.EnqueueIfIdle(req.JobType, payload, "api", "")
		} else {
			job, err = h.queue.Enqueue(req.JobType, payload, "api", "")
		}
		response.Handle(c, job, err)
	}
}

func (h *GinHandlers) lookupJob(c *gin.Context) (*Job, error) {
	id, err := strconv.ParseUint(c.Param("job_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Job ID must be numeric")
		return nil, err
	}
	job, err := h.queue.Get(uint(id))
	if err != nil {
		response.InternalError(c, err.Error())
		return nil, err
	}
	if job == nil {
		response.NotFound(c, "Job not found")
		return nil, nil
	}
	return job, nil
}
