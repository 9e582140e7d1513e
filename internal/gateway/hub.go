// Package gateway fans bus events out to live websocket connections.
package gateway

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/events"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/metrics"
)

// Hub is the topic -> connections registry. Its lock is independent of any
// store lock and is never held across a socket write.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Conn]struct{}
	conns  map[*Conn]map[string]struct{}
	logger zerolog.Logger
}

var _ events.Deliverer = (*Hub)(nil)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Conn]struct{}),
		conns:  make(map[*Conn]map[string]struct{}),
		logger: logging.Component(logger, "hub"),
	}
}

func (h *Hub) Subscribe(c *Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Conn]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}

	mine, ok := h.conns[c]
	if !ok {
		mine = make(map[string]struct{})
		h.conns[c] = mine
	}
	mine[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(c *Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribe(c, topic)
}

func (h *Hub) unsubscribe(c *Conn, topic string) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	if mine, ok := h.conns[c]; ok {
		delete(mine, topic)
	}
}

// RemoveAll drops c from every topic it joined.
func (h *Hub) RemoveAll(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.conns[c] {
		h.unsubscribe(c, topic)
	}
	delete(h.conns, c)
}

// Topics lists the topics c is subscribed to, sorted.
func (h *Hub) Topics(c *Conn) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.conns[c]))
	for t := range h.conns[c] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Deliver enqueues ev on every connection subscribed to its topic. Enqueue
// never blocks: a connection whose queue is full misses the event.
func (h *Hub) Deliver(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(ev.Kind)).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[ev.Topic] {
		if c.enqueue(payload) {
			metrics.GatewayDelivered.Inc()
		} else {
			metrics.GatewayDropped.Inc()
		}
	}
}

// Close stops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Stop()
	}
}
