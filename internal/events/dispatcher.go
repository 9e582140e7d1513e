package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/metrics"
)

// Alerter receives personal events for out-of-band delivery.
type Alerter interface {
	Alert(ctx context.Context, userID string, ev Event) error
}

// Dispatcher applies the events an operation produced once its transaction
// has committed. Failures are logged and counted, never returned: the
// committed state is authoritative.
type Dispatcher struct {
	bus     Bus
	alerter Alerter
	logger  zerolog.Logger
}

func NewDispatcher(bus Bus, alerter Alerter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, alerter: alerter, logger: logging.Component(logger, "dispatcher")}
}

// Apply publishes evs in order.
func (d *Dispatcher) Apply(ctx context.Context, evs []Event) {
	// The request may be finished by now; publishing must not depend on it.
	ctx = context.WithoutCancel(ctx)
	for _, ev := range evs {
		metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
		if err := d.bus.Publish(ctx, ev); err != nil {
			metrics.EventPublishFailures.WithLabelValues(string(ev.Kind)).Inc()
			d.logger.Error().Err(err).
				Str("kind", string(ev.Kind)).
				Str("topic", ev.Topic).
				Msg("event publish failed")
		}

		userID, personal := UserFromTopic(ev.Topic)
		if !personal || d.alerter == nil {
			continue
		}
		if err := d.alerter.Alert(ctx, userID, ev); err != nil {
			d.logger.Warn().Err(err).
				Str("kind", string(ev.Kind)).
				Str("user_id", userID).
				Msg("alert enqueue failed")
		}
	}
}
