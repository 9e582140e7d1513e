// Package admin serves the operator-only endpoints: the platform dashboard
// and wallet oversight.
package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mw "github.com/sudo-init-do/chefbid/internal/middleware"
	"github.com/sudo-init-do/chefbid/internal/reports"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

type Handler struct {
	reports *reports.Service
	ledger  *wallet.Ledger
}

func NewHandler(rep *reports.Service, ledger *wallet.Ledger) *Handler {
	return &Handler{reports: rep, ledger: ledger}
}

// GET /admin-dashboard
func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.reports.AdminDashboard(c.Request().Context())
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}
