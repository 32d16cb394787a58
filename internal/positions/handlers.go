package positions

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for position endpoints
type GinHandlers struct {
	db       *Database
	accounts *accounts.Database
}

func NewGinHandlers(db *Database, accountDB *accounts.Database) *GinHandlers {
	return &GinHandlers{db: db, accounts: accountDB}
}

// ListPositionsHandler handles GET requests for one account's stored book.
// The account is identified by its broker identifier or alias.
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.Query("account")
		if identifier == "" {
			response.BadRequest(c, "account query parameter is required")
			return
		}
		account, err := h.accounts.GetByIdentifier(identifier)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if account == nil {
			response.NotFound(c, "Account not found")
			return
		}
		book, err := h.db.List(account.ID)
		response.Handle(c, book, err)
	}
}
