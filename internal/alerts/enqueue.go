package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/events"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/metrics"
)

// Queue enqueues alert tasks on Redis through asynq. It satisfies
// events.Alerter.
type Queue struct {
	client *asynq.Client
	logger zerolog.Logger
}

var _ events.Alerter = (*Queue)(nil)

func NewQueue(opt asynq.RedisConnOpt, logger zerolog.Logger) *Queue {
	return &Queue{
		client: asynq.NewClient(opt),
		logger: logging.Component(logger, "alerts"),
	}
}

func (q *Queue) Close() error { return q.client.Close() }

// Alert schedules delivery of a personal event to userID.
func (q *Queue) Alert(ctx context.Context, userID string, ev events.Event) error {
	task, err := newUserEventTask(userID, ev)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, asynq.Queue(QueueUser), asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
}

// AdminAlert notifies operators, e.g. of ledger drift.
func (q *Queue) AdminAlert(ctx context.Context, severity, subject, message string) error {
	task, err := newAdminAlertTask(severity, subject, message, time.Now().UTC())
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, asynq.Queue(QueueAdmin), asynq.MaxRetry(5))
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	metrics.AlertsEnqueued.WithLabelValues(task.Type()).Inc()
	q.logger.Debug().Str("task", task.Type()).Str("task_id", info.ID).Str("queue", info.Queue).Msg("alert enqueued")
	return nil
}

func newUserEventTask(userID string, ev events.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", ev.Kind, err)
	}
	b, err := json.Marshal(UserEventPayload{
		UserID:         userID,
		NotificationID: ev.NotificationID,
		Kind:           string(ev.Kind),
		Message:        ev.Message,
		Data:           data,
		OccurredAt:     ev.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUserEvent, b), nil
}

func newAdminAlertTask(severity, subject, message string, at time.Time) (*asynq.Task, error) {
	b, err := json.Marshal(AdminAlertPayload{Severity: severity, Subject: subject, Message: message, SentAt: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAdminAlert, b), nil
}
