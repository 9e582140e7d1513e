package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/logging"
)

// envelope is the wire form of an Event. Data stays raw so nodes forward
// it without knowing the payload type.
type envelope struct {
	Event
	Data json.RawMessage `json:"data"`
}

// RedisBus fans events out across nodes through a Redis pub/sub channel.
// Every node runs Run to feed received events into its local subscribers.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	sink    Deliverer
	logger  zerolog.Logger
}

func NewRedisBus(client redis.UniversalClient, channel string, sink Deliverer, logger zerolog.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		sink:    sink,
		logger:  logging.Component(logger, "events").With().Str("channel", channel).Logger(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Run subscribes to the channel and delivers every received event until ctx
// is cancelled. Malformed messages are logged and skipped.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so events published after
	// Run starts are not missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Msg("event bus subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := decode([]byte(msg.Payload))
			if err != nil {
				b.logger.Error().Err(err).Msg("dropping malformed event")
				continue
			}
			b.sink.Deliver(ev)
		}
	}
}

func decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, err
	}
	if env.Kind == "" || env.Topic == "" {
		return Event{}, fmt.Errorf("event missing type or topic")
	}
	ev := env.Event
	ev.Data = env.Data
	return ev, nil
}
