// Package events carries committed state changes to realtime subscribers.
// Events are snapshots, not deltas: delivery is at-most-once and only
// per-topic publish order is preserved.
package events

import (
	"context"
	"strings"
	"time"
)

type Kind string

const (
	OrderCreated   Kind = "order_created"
	OrderAccepted  Kind = "order_accepted"
	OrderPreparing Kind = "order_preparing"
	OrderDelivered Kind = "order_delivered"
	OrderCompleted Kind = "order_completed"
	OrderUpdated   Kind = "order_updated"
	BidPlaced      Kind = "bid_placed"
	BidAccepted    Kind = "bid_accepted"
	BidWithdrawn   Kind = "bid_withdrawn"
	ReviewCreated  Kind = "review_created"
	ReviewUpdated  Kind = "review_updated"
	ChatMessage    Kind = "chat_message"
)

const (
	TopicOrders = "orders"

	userPrefix = "user:"
	chatPrefix = "chat:"
)

// UserTopic is the personal topic of a user.
func UserTopic(userID string) string { return userPrefix + userID }

// ChatTopic is the per-order chat topic.
func ChatTopic(orderID string) string { return chatPrefix + orderID }

// UserFromTopic returns the user id of a personal topic.
func UserFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, userPrefix)
	return id, ok && id != ""
}

// Event is what subscribers receive. Data is the entity as committed.
// Message is the human-readable line recorded as a notification for
// personal events, and NotificationID names that notification.
type Event struct {
	Kind           Kind      `json:"type"`
	Topic          string    `json:"topic"`
	Data           any       `json:"data"`
	Message        string    `json:"message,omitempty"`
	NotificationID string    `json:"notification_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func New(kind Kind, topic string, data any, at time.Time) Event {
	return Event{Kind: kind, Topic: topic, Data: data, OccurredAt: at}
}

// Personal returns a personal-topic event carrying a notification message.
func Personal(kind Kind, userID, message string, data any, at time.Time) Event {
	return Event{Kind: kind, Topic: UserTopic(userID), Data: data, Message: message, OccurredAt: at}
}

// Deliverer hands events to locally connected subscribers.
type Deliverer interface {
	Deliver(ev Event)
}

// Bus publishes events to every node's subscribers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
}

// LocalBus delivers straight to this process's subscribers.
type LocalBus struct {
	sink Deliverer
}

func NewLocalBus(sink Deliverer) *LocalBus { return &LocalBus{sink: sink} }

func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.sink.Deliver(ev)
	return nil
}
