package contracts

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for contract catalog endpoints
type GinHandlers struct {
	db       *Database
	resolver *Resolver
}

func NewGinHandlers(db *Database, resolver *Resolver) *GinHandlers {
	return &GinHandlers{db: db, resolver: resolver}
}

// ListContractsHandler handles GET requests for catalog rows by symbol
func (h *GinHandlers) ListContractsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
		if symbol == "" {
			response.BadRequest(c, "symbol query parameter is required")
			return
		}
		activeOnly := c.DefaultQuery("active", "true") != "false"
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		rows, err := h.db.List(symbol, activeOnly, limit)
		response.Handle(c, rows, err)
	}
}

type resolveRequest struct {
	Symbol          string   `json:"symbol" binding:"required"`
	SecType         string   `json:"sec_type" binding:"required"`
	ContractMonth   string   `json:"contract_month"`
	Strike          *float64 `json:"strike"`
	Right           string   `json:"right"`
	MinDaysToExpiry int      `json:"min_days_to_expiry"`
	DisableFallback bool     `json:"disable_fallback"`
}

// ResolveHandler handles POST requests that resolve a description to one
// tradeable catalog contract.
func (h *GinHandlers) ResolveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		month := ""
		if req.ContractMonth != "" {
			normalized, err := NormalizeMonth(req.ContractMonth)
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			month = normalized
		}

		resolved, err := h.resolver.Resolve(ResolveRequest{
			Symbol:          strings.ToUpper(strings.TrimSpace(req.Symbol)),
			SecType:         strings.ToUpper(strings.TrimSpace(req.SecType)),
			ContractMonth:   month,
			Strike:          req.Strike,
			Right:           req.Right,
			MinDaysToExpiry: req.MinDaysToExpiry,
			DisableFallback: req.DisableFallback,
		})
		response.Handle(c, resolved, err)
	}
}
