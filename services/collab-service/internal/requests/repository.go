package requests

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yw9142/ProjectBridge-sub000/libs/db"
)

// Request is a client-visible work item filed against a project.
type Request struct {
	ID        string
	TenantID  string
	ProjectID string
	AuthorID  string
	Title     string
	Body      string
	Status    string
	CreatedAt time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, req *Request) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO project_requests (tenant_id, project_id, author_id, title, body, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id
	`, req.TenantID, req.ProjectID, req.AuthorID, req.Title, req.Body).Scan(&id)
	return id, err
}
