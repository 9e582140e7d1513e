package reports

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// TopChefs - GET /chefs/top?limit=N
func (h *Handler) TopChefs(c echo.Context) error {
	limit := DefaultTopChefs
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return mw.BadRequest(c, "limit", "limit must be a positive integer")
		}
		limit = n
	}
	chefs, err := h.svc.TopChefs(c.Request().Context(), limit)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"chefs": chefs})
}

// ChefProfile - GET /chefs/:id
func (h *Handler) ChefProfile(c echo.Context) error {
	chefID := c.Param("id")
	if chefID == "" {
		return mw.BadRequest(c, "id", "chef id is required")
	}
	p, err := h.svc.ChefProfile(c.Request().Context(), chefID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ChefStats - GET /chef/stats for the signed-in chef
func (h *Handler) ChefStats(c echo.Context) error {
	stats, err := h.svc.ChefStats(c.Request().Context(), auth.FromContext(c).UserID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
