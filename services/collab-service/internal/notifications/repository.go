package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yw9142/ProjectBridge-sub000/libs/db"
)

var (
	ErrNotFound  = errors.New("notification not found")
	ErrForbidden = errors.New("notification belongs to another user")
)

// Notification is one per-recipient inbox row. Title and Message are already
// localized; EventType keeps the raw machine code for client-side filtering.
type Notification struct {
	ID        string
	TenantID  string
	UserID    string
	EventID   string
	EventType string
	Title     string
	Message   string
	ReadAt    *time.Time
	CreatedAt time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes one fan-out row inside the dispatcher's transaction. The
// (event_id, user_id) unique constraint makes a re-claimed event a no-op
// instead of a duplicate inbox entry; the bool reports whether a new row was
// created.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) (Notification, bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO notifications (tenant_id, user_id, event_id, event_type, title, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, user_id) DO NOTHING
		RETURNING id, created_at
	`, n.TenantID, n.UserID, n.EventID, n.EventType, n.Title, n.Message).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return n, false, nil
	}
	if err != nil {
		return Notification{}, false, err
	}
	return n, true, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// clampListLimit defaults a missing limit and caps an oversized one, so a
// large request degrades to the maximum rather than the default.
func clampListLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// ListForUser returns the caller's own inbox, newest first.
func (r *Repository) ListForUser(ctx context.Context, tenantID, userID string, limit int) ([]Notification, error) {
	limit = clampListLimit(limit)
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, event_id, event_type, title, message, read_at, created_at
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, tenantID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.EventID, &n.EventType, &n.Title, &n.Message, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MarkRead sets read_at once. Marking an already-read row again is a no-op,
// not an error; marking someone else's row is ErrForbidden with no state
// change.
func (r *Repository) MarkRead(ctx context.Context, tenantID, userID, notificationID string) (Notification, error) {
	var n Notification
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, event_id, event_type, title, message, read_at, created_at
		FROM notifications
		WHERE id = $1 AND tenant_id = $2
	`, notificationID, tenantID).Scan(&n.ID, &n.TenantID, &n.UserID, &n.EventID, &n.EventType, &n.Title, &n.Message, &n.ReadAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, ErrForbidden
	}
	if n.ReadAt != nil {
		return n, nil
	}

	err = r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET read_at = now()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL
		RETURNING read_at
	`, notificationID, userID).Scan(&n.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Raced with another mark-read; treat as the no-op second call.
		return n, nil
	}
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}
