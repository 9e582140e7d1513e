package marketplace

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/domain"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
)

// Handler exposes the Service over HTTP. Routes are registered by cmd/api.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// idParam reads a UUID path parameter.
func idParam(c echo.Context, name string) (string, error) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		return "", domain.NewValidationError(name, "invalid "+name+" format")
	}
	return id, nil
}

// =========================
// Orders
// =========================

// CreateOrder - customer posts an order
func (h *Handler) CreateOrder(c echo.Context) error {
	id := auth.FromContext(c)

	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return mw.BadRequest(c, "body", "invalid request body")
	}

	order, err := h.svc.CreateOrder(c.Request().Context(), id.UserID, req.toDomain())
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// OpenOrders - chefs browse orders still taking bids
func (h *Handler) OpenOrders(c echo.Context) error {
	orders, err := h.svc.OpenOrders(c.Request().Context())
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(orders))
}

// MyOrders - the customer's own orders
func (h *Handler) MyOrders(c echo.Context) error {
	orders, err := h.svc.CustomerOrders(c.Request().Context(), auth.FromContext(c).UserID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(orders))
}

// AssignedOrders - orders awarded to the calling chef
func (h *Handler) AssignedOrders(c echo.Context) error {
	orders, err := h.svc.ChefOrders(c.Request().Context(), auth.FromContext(c).UserID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(orders))
}

// GetOrder - open orders are public to signed-in users; others only to
// their customer, their chef and admins
func (h *Handler) GetOrder(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	order, err := h.svc.Order(c.Request().Context(), orderID)
	if err != nil {
		return mw.WriteError(c, err)
	}

	id := auth.FromContext(c)
	visible := order.Status == domain.OrderOpen ||
		order.CustomerID == id.UserID ||
		order.IsAcceptedChef(id.UserID) ||
		id.Role == auth.RoleAdmin
	if !visible {
		return mw.WriteError(c, domain.ErrNotAuthorized)
	}
	return c.JSON(http.StatusOK, order)
}

// CancelOrder - customer withdraws an order nobody has been awarded yet
func (h *Handler) CancelOrder(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	order, err := h.svc.CancelOrder(c.Request().Context(), auth.FromContext(c).UserID, orderID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// PrepareOrder - accepted chef starts cooking
func (h *Handler) PrepareOrder(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	order, err := h.svc.MarkPreparing(c.Request().Context(), auth.FromContext(c).UserID, orderID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// FulfillOrder - accepted chef marks the order delivered
func (h *Handler) FulfillOrder(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	order, err := h.svc.FulfillOrder(c.Request().Context(), auth.FromContext(c).UserID, orderID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order_id":     order.ID,
		"order_status": order.Status,
		"message":      "Order marked as delivered",
	})
}

// CompleteOrder - customer confirms delivery, which pays the chef
func (h *Handler) CompleteOrder(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	done, err := h.svc.CompleteOrder(c.Request().Context(), auth.FromContext(c).UserID, orderID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, done)
}

// =========================
// Bids
// =========================

// PlaceBid - chef offers a price and delivery estimate on an open order
func (h *Handler) PlaceBid(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return mw.BadRequest(c, "body", "invalid request body")
	}
	in, err := req.toDomain()
	if err != nil {
		return mw.WriteError(c, err)
	}

	bid, err := h.svc.PlaceBid(c.Request().Context(), auth.FromContext(c).UserID, orderID, in)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusCreated, bid)
}

// OrderBids - the owning customer reviews bids on an order
func (h *Handler) OrderBids(c echo.Context) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	bids, err := h.svc.OrderBids(c.Request().Context(), auth.FromContext(c).UserID, orderID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(bids))
}

// AcceptBid - the owning customer awards the order to one bid
func (h *Handler) AcceptBid(c echo.Context) error {
	bidID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	res, err := h.svc.AcceptBid(c.Request().Context(), auth.FromContext(c).UserID, bidID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// WithdrawBid - chef pulls a pending bid
func (h *Handler) WithdrawBid(c echo.Context) error {
	bidID, err := idParam(c, "id")
	if err != nil {
		return mw.WriteError(c, err)
	}
	bid, err := h.svc.WithdrawBid(c.Request().Context(), auth.FromContext(c).UserID, bidID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

// MyBids - every bid the calling chef has placed
func (h *Handler) MyBids(c echo.Context) error {
	bids, err := h.svc.ChefBids(c.Request().Context(), auth.FromContext(c).UserID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(bids))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
