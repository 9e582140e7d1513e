package wallet

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/domain"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
)

// WithdrawRequest is the body of POST /wallet/withdraw.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Withdraw pays out from the caller's balance immediately. The debit fails
// with InsufficientFunds instead of overdrawing.
func (h *Handler) Withdraw(c echo.Context) error {
	var req WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return mw.BadRequest(c, "body", "invalid request body")
	}
	if !domain.ValidAmount(req.Amount) {
		return mw.BadRequest(c, "amount", "amount must be greater than zero with at most 2 decimal places")
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "Withdrawal"
	}

	uid := auth.FromContext(c).UserID
	t, err := h.ledger.Debit(c.Request().Context(), uid, req.Amount, desc)
	if err != nil {
		return mw.WriteError(c, err)
	}

	w, err := h.ledger.store.GetWallet(c.Request().Context(), uid)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"transaction": t,
		"balance":     w.Balance.StringFixed(2),
		"message":     "Withdrawal successful and balance updated",
	})
}
