package alerts

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/domain"
	mw "github.com/sudo-init-do/chefbid/internal/middleware"
	"github.com/sudo-init-do/chefbid/internal/store"
)

// Inbox serves the durable notifications written alongside personal events.
type Inbox struct {
	store store.Store
}

func NewInbox(st store.Store) *Inbox { return &Inbox{store: st} }

// ListNotifications returns current user's notifications, newest first
func (h *Inbox) ListNotifications(c echo.Context) error {
	items, err := h.store.ListNotifications(c.Request().Context(), auth.FromContext(c).UserID)
	if err != nil {
		return mw.WriteError(c, err)
	}
	if items == nil {
		items = []domain.Notification{}
	}
	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items, "unread": unread})
}

// MarkNotificationRead marks specific notification as read
func (h *Inbox) MarkNotificationRead(c echo.Context) error {
	nid := c.Param("id")
	if _, err := uuid.Parse(nid); err != nil {
		return mw.BadRequest(c, "id", "invalid notification id")
	}
	ctx := c.Request().Context()
	uid := auth.FromContext(c).UserID
	err := h.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.MarkNotificationRead(ctx, uid, nid)
	})
	if err != nil {
		return mw.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}
