package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/store"
)

// RedisOpt builds the asynq connection for addr.
func RedisOpt(addr string) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr}
}

// Processor handles alert tasks. A user event is delivered by stamping its
// notification's delivered_at; the log line is the audit trail. Admin
// alerts are only logged.
type Processor struct {
	store  store.Store
	now    func() time.Time
	logger zerolog.Logger
}

func NewProcessor(st store.Store, logger zerolog.Logger) *Processor {
	return &Processor{store: st, now: time.Now, logger: logging.Component(logger, "alerts")}
}

// Mux routes every alert task type to its handler.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskUserEvent, p.HandleUserEvent)
	mux.HandleFunc(TaskAdminAlert, p.HandleAdminAlert)
	return mux
}

func (p *Processor) HandleUserEvent(ctx context.Context, t *asynq.Task) error {
	var pl UserEventPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if pl.UserID == "" {
		return fmt.Errorf("%s without user_id: %w", t.Type(), asynq.SkipRetry)
	}
	if pl.NotificationID != "" {
		err := p.store.WithTx(ctx, func(tx store.Tx) error {
			return tx.MarkNotificationDelivered(ctx, pl.UserID, pl.NotificationID, p.now().UTC())
		})
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("notification %s: %v: %w", pl.NotificationID, err, asynq.SkipRetry)
		}
		if err != nil {
			return fmt.Errorf("mark notification %s delivered: %w", pl.NotificationID, err)
		}
	}
	p.logger.Info().
		Str("notification_id", pl.NotificationID).
		Str("user_id", pl.UserID).
		Str("kind", pl.Kind).
		Str("message", pl.Message).
		Time("occurred_at", pl.OccurredAt).
		Msg("user alert delivered")
	return nil
}

func (p *Processor) HandleAdminAlert(_ context.Context, t *asynq.Task) error {
	var pl AdminAlertPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	ev := p.logger.Warn()
	if pl.Severity == SeverityCritical {
		ev = p.logger.Error()
	}
	ev.Str("severity", pl.Severity).Str("subject", pl.Subject).Msg(pl.Message)
	return nil
}

// Worker runs the asynq server consuming alert queues.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

func NewWorker(opt asynq.RedisConnOpt, p *Processor, logger zerolog.Logger) *Worker {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueUser:  10,
			QueueAdmin: 5,
		},
		Logger: asynqLogger{logging.Component(logger, "asynq")},
	})
	return &Worker{server: server, mux: p.Mux(), logger: logger}
}

// Run processes tasks until ctx is cancelled, then drains in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start alert worker: %w", err)
	}
	w.logger.Info().Msg("alert worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info().Msg("alert worker stopped")
	return nil
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
