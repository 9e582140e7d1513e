package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/events"
)

type chatRule map[string]string // order id -> participant user id

func (r chatRule) CanJoinChat(_ context.Context, userID, orderID string) (bool, error) {
	return r[orderID] == userID, nil
}

func bareConn(buffer int, maxFailed int32) *Conn {
	return &Conn{
		opts:   Options{MaxFailedSends: maxFailed},
		logger: zerolog.Nop(),
		send:   make(chan []byte, buffer),
		quit:   make(chan struct{}),
	}
}

func TestHubMembership(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a, b := bareConn(4, 10), bareConn(4, 10)

	h.Subscribe(a, events.TopicOrders)
	h.Subscribe(a, events.UserTopic("a"))
	h.Subscribe(b, events.TopicOrders)
	assert.Equal(t, 2, h.Subscribers(events.TopicOrders))
	assert.Equal(t, []string{"orders", "user:a"}, h.Topics(a))

	h.Unsubscribe(a, events.TopicOrders)
	assert.Equal(t, 1, h.Subscribers(events.TopicOrders))

	h.RemoveAll(a)
	assert.Empty(t, h.Topics(a))
	assert.Zero(t, h.Subscribers(events.UserTopic("a")))
	assert.Equal(t, 1, h.Subscribers(events.TopicOrders))
}

func TestHubDeliversOnlyToTopic(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a, b := bareConn(4, 10), bareConn(4, 10)
	h.Subscribe(a, events.UserTopic("a"))
	h.Subscribe(b, events.UserTopic("b"))

	h.Deliver(events.New(events.BidAccepted, events.UserTopic("a"), nil, time.Now()))

	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 0)
}

func TestHubPreservesTopicOrder(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := bareConn(8, 10)
	h.Subscribe(c, events.TopicOrders)

	kinds := []events.Kind{events.OrderCreated, events.BidPlaced, events.OrderUpdated}
	for _, k := range kinds {
		h.Deliver(events.New(k, events.TopicOrders, nil, time.Now()))
	}
	for _, want := range kinds {
		var ev events.Event
		require.NoError(t, json.Unmarshal(<-c.send, &ev))
		assert.Equal(t, want, ev.Kind)
	}
}

func TestSlowConnectionDoesNotBlockOthers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	slow, fast := bareConn(1, 2), bareConn(16, 2)
	h.Subscribe(slow, events.TopicOrders)
	h.Subscribe(fast, events.TopicOrders)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			h.Deliver(events.New(events.BidPlaced, events.TopicOrders, nil, time.Now()))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery blocked on a full connection")
	}

	assert.Len(t, fast.send, 5)
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow connection should be stopped after repeated failed sends")
	}
}

type testServer struct {
	*httptest.Server
	hub      *Hub
	resolver *auth.JWTResolver
}

func newTestServer(t *testing.T, chats ChatAuthorizer) *testServer {
	t.Helper()
	resolver := auth.NewJWTResolver("k")
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	e.GET("/ws", NewHandler(hub, resolver, chats, DefaultOptions(), zerolog.Nop()).Serve)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, resolver: resolver}
}

func (s *testServer) dial(t *testing.T, userID string, role auth.Role) *websocket.Conn {
	t.Helper()
	tok, err := s.resolver.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + tok}})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(v))
}

func TestHandlerRejectsAnonymous(t *testing.T) {
	s := newTestServer(t, chatRule{})
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerSubscribesGlobalAndPersonal(t *testing.T) {
	s := newTestServer(t, chatRule{})
	chef := s.dial(t, "chef-1", auth.RoleChef)
	s.dial(t, "cust-1", auth.RoleCustomer)

	require.Eventually(t, func() bool {
		return s.hub.Subscribers(events.TopicOrders) == 2 && s.hub.Subscribers(events.UserTopic("chef-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.hub.Deliver(events.New(events.OrderCreated, events.TopicOrders, map[string]string{"id": "o1"}, time.Now()))
	s.hub.Deliver(events.Personal(events.BidAccepted, "cust-1", "not for the chef", nil, time.Now()))
	s.hub.Deliver(events.Personal(events.BidAccepted, "chef-1", "Your bid was accepted", map[string]string{"id": "b1"}, time.Now()))

	var first, second events.Event
	readJSON(t, chef, &first)
	readJSON(t, chef, &second)
	assert.Equal(t, events.OrderCreated, first.Kind)
	assert.Equal(t, events.BidAccepted, second.Kind)
	assert.Equal(t, "user:chef-1", second.Topic)
}

func TestHandlerChatJoin(t *testing.T) {
	s := newTestServer(t, chatRule{"o1": "cust-1"})
	cust := s.dial(t, "cust-1", auth.RoleCustomer)
	intruder := s.dial(t, "chef-9", auth.RoleChef)

	require.NoError(t, intruder.WriteJSON(request{Action: "join", OrderID: "o1"}))
	var denied reply
	readJSON(t, intruder, &denied)
	assert.Equal(t, "error", denied.Type)

	require.NoError(t, cust.WriteJSON(request{Action: "join", OrderID: "o1"}))
	var joined reply
	readJSON(t, cust, &joined)
	assert.Equal(t, reply{Type: "joined", Topic: "chat:o1"}, joined)
	assert.Equal(t, 1, s.hub.Subscribers(events.ChatTopic("o1")))

	require.NoError(t, cust.WriteJSON(request{Action: "leave", OrderID: "o1"}))
	var left reply
	readJSON(t, cust, &left)
	assert.Equal(t, "left", left.Type)
	assert.Zero(t, s.hub.Subscribers(events.ChatTopic("o1")))
}

func TestDisconnectLeavesAllTopics(t *testing.T) {
	s := newTestServer(t, chatRule{"o1": "cust-1"})
	cust := s.dial(t, "cust-1", auth.RoleCustomer)

	require.NoError(t, cust.WriteJSON(request{Action: "join", OrderID: "o1"}))
	var joined reply
	readJSON(t, cust, &joined)
	require.Equal(t, "joined", joined.Type)

	require.NoError(t, cust.Close())
	require.Eventually(t, func() bool {
		return s.hub.Subscribers(events.TopicOrders) == 0 &&
			s.hub.Subscribers(events.UserTopic("cust-1")) == 0 &&
			s.hub.Subscribers(events.ChatTopic("o1")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerReleasesClosedConnections(t *testing.T) {
	t.Cleanup(leaktest.CheckTimeout(t, 5*time.Second))
	s := newTestServer(t, chatRule{})
	ws := s.dial(t, "chef-1", auth.RoleChef)
	require.Eventually(t, func() bool {
		return s.hub.Subscribers(events.TopicOrders) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		return s.hub.Subscribers(events.TopicOrders) == 0 && s.hub.Subscribers(events.UserTopic("chef-1")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
