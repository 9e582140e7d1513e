package admin

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/domain"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

// GET /admin/wallets
func (h *Handler) ListWallets(c echo.Context) error {
	wallets, err := h.ledger.Wallets(c.Request().Context())
	if err != nil {
		return mw.WriteError(c, err)
	}
	if wallets == nil {
		wallets = []domain.Wallet{}
	}
	return c.JSON(http.StatusOK, echo.Map{"wallets": wallets})
}

// GET /admin/wallets/:user_id/transactions
func (h *Handler) UserTransactions(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return mw.BadRequest(c, "user_id", "user ID is required")
	}
	txs, err := h.ledger.Transactions(c.Request().Context(), userID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// AdjustRequest is the body of POST /admin/wallets/:user_id/adjust.
type AdjustRequest struct {
	Type        domain.TransactionType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	Description string                 `json:"description"`
}

// POST /admin/wallets/:user_id/adjust - manual credit or debit
func (h *Handler) Adjust(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return mw.BadRequest(c, "user_id", "user ID is required")
	}
	var req AdjustRequest
	if err := c.Bind(&req); err != nil {
		return mw.BadRequest(c, "body", "invalid request body")
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "Adjustment by " + auth.FromContext(c).UserID
	}

	ctx := c.Request().Context()
	var (
		t   domain.Transaction
		err error
	)
	switch req.Type {
	case domain.TxCredit:
		t, err = h.ledger.Credit(ctx, userID, req.Amount, desc)
	case domain.TxDebit:
		t, err = h.ledger.Debit(ctx, userID, req.Amount, desc)
	default:
		return mw.BadRequest(c, "type", "type must be credit or debit")
	}
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transaction": t})
}

// GET /admin/ledger/verify[?user_id=] - replay wallets against their logs
func (h *Handler) VerifyLedger(c echo.Context) error {
	ctx := c.Request().Context()
	if userID := c.QueryParam("user_id"); userID != "" {
		a, err := h.ledger.Verify(ctx, userID)
		if err != nil {
			return mw.WriteError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"consistent": a.Consistent, "wallets": []wallet.Audit{a}})
	}

	audits, err := h.ledger.VerifyAll(ctx)
	if err != nil {
		return mw.WriteError(c, err)
	}
	consistent := true
	for _, a := range audits {
		consistent = consistent && a.Consistent
	}
	return c.JSON(http.StatusOK, echo.Map{"consistent": consistent, "wallets": audits})
}
