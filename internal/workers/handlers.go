package workers

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for worker status endpoints
type GinHandlers struct {
	heartbeats *Heartbeats
}

func NewGinHandlers(heartbeats *Heartbeats) *GinHandlers {
	return &GinHandlers{heartbeats: heartbeats}
}

// ListHeartbeatsHandler handles GET requests for the worker heartbeat rows
func (h *GinHandlers) ListHeartbeatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := h.heartbeats.List()
		response.Handle(c, all, err)
	}
}
