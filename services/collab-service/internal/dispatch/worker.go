package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/yw9142/ProjectBridge-sub000/libs/otel"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/i18n"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/notifications"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/outbox"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/push"
)

// TxStarter opens the transaction one batch runs in.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EventSource claims pending outbox rows and records their outcome.
type EventSource interface {
	ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]outbox.Record, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, lastError string) error
}

// NotificationWriter persists one fan-out row inside the batch transaction.
type NotificationWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, n notifications.Notification) (notifications.Notification, bool, error)
}

// RecipientResolver maps one event to its recipient user IDs.
type RecipientResolver interface {
	Resolve(ctx context.Context, rcd outbox.Record, env outbox.Envelope) ([]string, error)
}

// Worker drains the outbox backlog. Every running instance polls with the
// same loop; the skip-locked claim in the outbox repository partitions the
// backlog between them.
type Worker struct {
	db        TxStarter
	outbox    EventSource
	inbox     NotificationWriter
	resolver  RecipientResolver
	registry  *push.Registry
	logger    *slog.Logger
	tracer    trace.Tracer
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(db TxStarter, events EventSource, inbox NotificationWriter, resolver RecipientResolver, registry *push.Registry, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		db:        db,
		outbox:    events,
		inbox:     inbox,
		resolver:  resolver,
		registry:  registry,
		logger:    logger,
		tracer:    otel.Tracer("collab-service/dispatch"),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("dispatch batch failed", "err", err)
			}
		}
	}
}

// delivery is a live push held back until the batch transaction commits, so
// a rollback can never have produced a push for a row that does not exist.
type delivery struct {
	userID  string
	payload pushPayload
}

type pushPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type failedEvent struct {
	record outbox.Record
	reason string
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := w.outbox.ClaimBatch(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return tx.Commit(ctx)
	}

	var processed []int64
	var failed []failedEvent
	var deliveries []delivery
	for _, rcd := range records {
		evtCtx := otelx.ContextWithTraceContext(ctx, rcd.Traceparent, rcd.Tracestate)
		evtCtx, span := w.tracer.Start(evtCtx, "outbox.dispatch "+rcd.EventType,
			trace.WithSpanKind(trace.SpanKindConsumer))
		sent, err := w.processEvent(evtCtx, tx, rcd)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if err != nil {
			// One poisoned event must not block the batch; it retries on a
			// later tick and parks as dead_letter once attempts run out.
			failed = append(failed, failedEvent{record: rcd, reason: err.Error()})
			continue
		}
		processed = append(processed, rcd.ID)
		deliveries = append(deliveries, sent...)
	}

	if err := w.outbox.MarkProcessed(ctx, tx, processed); err != nil {
		return err
	}

	for _, f := range failed {
		attempts := f.record.Attempts + 1
		if err := w.outbox.MarkFailed(ctx, tx, f.record.ID, attempts, f.record.MaxAttempts, f.reason); err != nil {
			return err
		}
		if attempts >= f.record.MaxAttempts {
			w.logger.Error("outbox event dead-lettered",
				"event_id", f.record.EventID,
				"event_type", f.record.EventType,
				"attempts", attempts,
				"reason", f.reason,
			)
		} else {
			w.logger.Warn("outbox event failed, will retry",
				"event_id", f.record.EventID,
				"event_type", f.record.EventType,
				"attempts", attempts,
				"reason", f.reason,
			)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// Durable rows are committed; live copies are best-effort from here.
	for _, d := range deliveries {
		w.registry.Send(d.userID, "notification.created", d.payload)
	}
	return nil
}

// processEvent fans out one claimed event: resolve recipients, localize,
// write inbox rows in the batch transaction. An empty recipient set is a
// valid terminal outcome, not a failure.
func (w *Worker) processEvent(ctx context.Context, tx pgx.Tx, rcd outbox.Record) ([]delivery, error) {
	env, err := rcd.Decode()
	if err != nil {
		return nil, err
	}

	recipients, err := w.resolver.Resolve(ctx, rcd, env)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	title, message := i18n.NotificationText(rcd.EventType, env.Title, env.Message)

	var deliveries []delivery
	for _, userID := range recipients {
		row, inserted, err := w.inbox.Insert(ctx, tx, notifications.Notification{
			TenantID:  rcd.TenantID,
			UserID:    userID,
			EventID:   rcd.EventID,
			EventType: rcd.EventType,
			Title:     title,
			Message:   message,
		})
		if err != nil {
			return nil, err
		}
		if !inserted {
			// Row already exists from an earlier attempt; no duplicate push.
			continue
		}
		deliveries = append(deliveries, delivery{
			userID: userID,
			payload: pushPayload{
				ID:        row.ID,
				EventType: rcd.EventType,
				Title:     title,
				Message:   message,
				CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	return deliveries, nil
}
