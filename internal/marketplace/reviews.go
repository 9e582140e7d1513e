package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
)

// SubmitReview lets the customer rate a completed order
func (h *Handler) SubmitReview(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}

	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return mw.BadRequest(c, "body", "invalid request body")
	}

	review, err := h.svc.SubmitReview(c.Request().Context(), auth.FromContext(c).UserID, orderID, req.Rating, req.Comment)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, review)
}

// GetOrderReview returns the review of an order to its customer or chef
func (h *Handler) GetOrderReview(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	review, err := h.svc.OrderReview(c.Request().Context(), auth.FromContext(c).UserID, orderID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, review)
}
