package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
)

// Transactions returns the authenticated user's ledger entries, newest first
func (h *Handler) Transactions(c echo.Context) error {
	txs, err := h.ledger.Transactions(c.Request().Context(), auth.FromContext(c).UserID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
