package tradebot

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the tool-call endpoints
type GinHandlers struct {
	tools *Tools
}

func NewGinHandlers(tools *Tools) *GinHandlers {
	return &GinHandlers{tools: tools}
}

// PreviewOrderHandler handles POST requests that dry-run an order
func (h *GinHandlers) PreviewOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PreviewOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		result, err := h.tools.PreviewOrder(c.Request.Context(), req)
		response.Handle(c, result, err)
	}
}

// QueueOrderHandler handles POST requests that queue a confirmed order
func (h *GinHandlers) QueueOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueueOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		order, err := h.tools.QueueOrder(c.Request.Context(), req)
		response.Handle(c, order, err)
	}
}

// ListPositionsHandler handles GET requests for one account's book
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Query("account")
		if account == "" {
			response.BadRequest(c, "account query parameter is required")
			return
		}
		book, err := h.tools.ListPositions(account)
		response.Handle(c, book, err)
	}
}

// ListOrdersHandler handles GET requests for recent orders
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		all, err := h.tools.ListOrders(limit)
		response.Handle(c, all, err)
	}
}

// ListJobsHandler handles GET requests for recent jobs
func (h *GinHandlers) ListJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		all, err := h.tools.ListJobs(limit)
		response.Handle(c, all, err)
	}
}

// ListContractsHandler handles GET requests for active catalog rows
func (h *GinHandlers) ListContractsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Query("symbol")
		if symbol == "" {
			response.BadRequest(c, "symbol query parameter is required")
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		rows, err := h.tools.ListContracts(symbol, limit)
		response.Handle(c, rows, err)
	}
}
