package orders

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	store    *Database
	accounts *accounts.Database
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(store *Database, accountDB *accounts.Database) *GinHandlers {
	return &GinHandlers{store: store, accounts: accountDB}
}

type createOrderRequest struct {
	Account     string `json:"account" binding:"required"`
	Symbol      string `json:"symbol" binding:"required"`
	SecType     string `json:"sec_type"`
	Side        string `json:"side" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
	TIF         string `json:"tif"`
	ConID       int64  `json:"con_id"`
	RequestText string `json:"request_text"`
}

// CreateOrderHandler handles POST requests to queue new orders
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		account, err := h.accounts.GetByIdentifier(req.Account)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if account == nil {
			response.NotFound(c, "Account not found")
			return
		}

		order, err := h.store.Create(CreateRequest{
			AccountID:   account.ID,
			Symbol:      req.Symbol,
			SecType:     req.SecType,
			Side:        req.Side,
			Quantity:    req.Quantity,
			TIF:         req.TIF,
			Source:      "api",
			RequestText: req.RequestText,
			ConID:       req.ConID,
		})
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, order)
	}
}

// ListOrdersHandler handles GET requests for recent orders
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		all, err := h.store.List(limit)
		response.Handle(c, all, err)
	}
}

// GetOrderHandler handles GET requests for one order
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.lookupOrder(c)
		if order == nil {
			return
		}
		response.Handle(c, order, err)
	}
}

// OrderEventsHandler handles GET requests for an order's audit trail
func (h *GinHandlers) OrderEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, _ := h.lookupOrder(c)
		if order == nil {
			return
		}
		events, err := h.store.ListEvents(order.ID)
		response.Handle(c, events, err)
	}
}

// CancelOrderHandler handles POST requests to cancel a still-queued order
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, _ := h.lookupOrder(c)
		if order == nil {
			return
		}
		cancelled, err := h.store.Cancel(order.ID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if !cancelled {
			response.Conflict(c, "Order is no longer queued and cannot be cancelled")
			return
		}
		updated, err := h.store.Get(order.ID)
		response.Handle(c, updated, err)
	}
}

func (h *GinHandlers) lookupOrder(c *gin.Context) (*Order, error) {
	id, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Order ID must be numeric")
		return nil, err
	}
	order, err := h.store.Get(uint(id))
	if err != nil {
		response.InternalError(c, err.Error())
		return nil, err
	}
	if order == nil {
		response.NotFound(c, "Order not found")
		return nil, nil
	}
	return order, nil
}
