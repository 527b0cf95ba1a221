package outbox

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yw9142/ProjectBridge-sub000/libs/db"
	otelx "github.com/yw9142/ProjectBridge-sub000/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one event row inside the caller's transaction. The row
// commits or rolls back together with the business write.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	var business json.RawMessage
	if len(evt.BusinessPayload) > 0 {
		raw, err := json.Marshal(evt.BusinessPayload)
		if err != nil {
			return err
		}
		business = raw
	}
	payload, err := json.Marshal(Envelope{
		Title:           evt.Title,
		Message:         evt.Message,
		ActorUserID:     evt.ActorUserID,
		BusinessPayload: business,
	})
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, tenant_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), evt.TenantID, evt.AggregateType, evt.AggregateID, evt.EventType, payload, traceparent, tracestate)
	return err
}

// ClaimBatch selects up to limit unprocessed rows in creation order and locks
// them for this transaction. SKIP LOCKED partitions the backlog between
// concurrently polling instances: two claimers never see the same row.
func (r *Repository) ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, tenant_id, event_type, payload, traceparent, tracestate, created_at, attempts, max_attempts
		FROM outbox_events
		WHERE processed_at IS NULL
		  AND status = 'pending'
		  AND deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.TenantID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt, &rcd.Attempts, &rcd.MaxAttempts); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// MarkProcessed stamps processed_at exactly once for fully fanned-out rows.
func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET processed_at = now(), status = 'processed'
		WHERE id = ANY($1) AND processed_at IS NULL
	`, ids)
	return err
}

// MarkFailed records a failed fan-out attempt. The row stays claimable until
// attempts reaches max_attempts, then parks as dead_letter.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusDeadLetter
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = $2,
		    status = $3,
		    last_error = $4
		WHERE id = $1
	`, id, attempts, status, lastError)
	return err
}

// FeedEntry is a projection row for the operator activity feed.
type FeedEntry struct {
	EventID   string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// ListRecentByOperators returns the newest tenant events whose actor holds an
// operator-tier role, optionally narrowed to one project.
func (r *Repository) ListRecentByOperators(ctx context.Context, tenantID, projectID string, limit int) ([]FeedEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query := `
		SELECT o.event_id, o.event_type, o.payload, o.created_at
		FROM outbox_events o
		JOIN tenant_members m
		  ON m.tenant_id = o.tenant_id
		 AND m.user_id = o.payload->>'actor_user_id'
		WHERE o.tenant_id = $1
		  AND o.deleted_at IS NULL
		  AND m.role IN ('owner', 'admin', 'staff')
	`
	args := []any{tenantID}
	if projectID != "" {
		query += ` AND o.payload->'business_payload'->>'project_id' = $2`
		args = append(args, projectID)
	}
	query += ` ORDER BY o.created_at DESC, o.id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FeedEntry
	for rows.Next() {
		var e FeedEntry
		if err := rows.Scan(&e.EventID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// RelayRecord is an outbox row pending mirroring to Kafka.
type RelayRecord struct {
	ID          int64
	EventID     string
	TenantID    string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
}

// FetchUnrelayed claims rows for the Kafka mirror. The relay cursor
// (relayed_at) is independent of the fan-out cursor (processed_at), so the
// mirror never competes with the dispatcher.
func (r *Repository) FetchUnrelayed(ctx context.Context, tx pgx.Tx, limit int) ([]RelayRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, tenant_id, aggregate_id, event_type, payload, traceparent, tracestate
		FROM outbox_events
		WHERE relayed_at IS NULL AND deleted_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RelayRecord
	for rows.Next() {
		var rcd RelayRecord
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.TenantID, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) MarkRelayed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET relayed_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
