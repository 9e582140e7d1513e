package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
)

// Handler serves the caller's own wallet.
type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler { return &Handler{ledger: ledger} }

// Balance returns the authenticated user's wallet and its history
func (h *Handler) Balance(c echo.Context) error {
	details, err := h.ledger.Wallet(c.Request().Context(), auth.FromContext(c).UserID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}
