package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/events"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/metrics"
)

// ChatAuthorizer decides whether a user may follow an order's chat topic.
type ChatAuthorizer interface {
	CanJoinChat(ctx context.Context, userID, orderID string) (bool, error)
}

type request struct {
	Action  string `json:"action"`
	OrderID string `json:"order_id"`
}

type reply struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler upgrades GET /ws. Every connection follows the global orders
// topic and its user's personal topic, and may join order chats on request.
type Handler struct {
	hub      *Hub
	resolver auth.Resolver
	chats    ChatAuthorizer
	opts     Options
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, resolver auth.Resolver, chats ChatAuthorizer, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		resolver: resolver,
		chats:    chats,
		opts:     opts,
		logger:   logging.Component(logger, "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Serve(c echo.Context) error {
	token, err := auth.TokenFromRequest(c.Request())
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	}
	id, err := h.resolver.Resolve(token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	conn := newConn(ws, id, h.opts, h.logger)
	h.hub.Subscribe(conn, events.TopicOrders)
	h.hub.Subscribe(conn, events.UserTopic(id.UserID))
	metrics.GatewayConnections.Inc()
	conn.logger.Info().Msg("websocket connected")

	defer func() {
		h.hub.RemoveAll(conn)
		metrics.GatewayConnections.Dec()
		conn.logger.Info().Msg("websocket disconnected")
	}()

	go conn.writePump()
	conn.readPump(func(msg []byte) { h.handleFrame(c.Request().Context(), conn, msg) })
	return nil
}

func (h *Handler) handleFrame(ctx context.Context, conn *Conn, msg []byte) {
	var req request
	if err := json.Unmarshal(msg, &req); err != nil {
		h.reply(conn, reply{Type: "error", Message: "malformed request"})
		return
	}
	if req.OrderID == "" && (req.Action == "join" || req.Action == "leave") {
		h.reply(conn, reply{Type: "error", Message: "order_id is required"})
		return
	}

	topic := events.ChatTopic(req.OrderID)
	switch req.Action {
	case "join":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		ok, err := h.chats.CanJoinChat(ctx, conn.identity.UserID, req.OrderID)
		if err != nil {
			conn.logger.Error().Err(err).Str("order_id", req.OrderID).Msg("chat authorization failed")
			h.reply(conn, reply{Type: "error", Topic: topic, Message: "could not join chat"})
			return
		}
		if !ok {
			h.reply(conn, reply{Type: "error", Topic: topic, Message: "not a participant in this order"})
			return
		}
		h.hub.Subscribe(conn, topic)
		h.reply(conn, reply{Type: "joined", Topic: topic})
	case "leave":
		h.hub.Unsubscribe(conn, topic)
		h.reply(conn, reply{Type: "left", Topic: topic})
	default:
		h.reply(conn, reply{Type: "error", Message: "unknown action " + req.Action})
	}
}

func (h *Handler) reply(conn *Conn, r reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	conn.enqueue(payload)
}
