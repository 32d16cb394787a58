package accounts

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for account endpoints
type GinHandlers struct {
	db *Database
}

func NewGinHandlers(db *Database) *GinHandlers {
	return &GinHandlers{db: db}
}

// ListAccountsHandler handles GET requests for the known accounts
func (h *GinHandlers) ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := h.db.List()
		response.Handle(c, all, err)
	}
}
