package membership

import (
	"context"

	"github.com/yw9142/ProjectBridge-sub000/libs/db"
)

// Repository resolves memberships from the shared tenant_members and
// project_members tables, which are owned by the directory service and read
// here only.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Resolver = (*Repository)(nil)

func tierRoles(tier Tier) []string {
	if tier == TierOperator {
		return []string{string(RoleOwner), string(RoleAdmin), string(RoleStaff)}
	}
	return []string{string(RoleClient)}
}

func (r *Repository) TenantRole(ctx context.Context, tenantID, userID string) (Role, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role
		FROM tenant_members
		WHERE tenant_id = $1 AND user_id = $2
		LIMIT 1
	`, tenantID, userID)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	var role string
	if err := rows.Scan(&role); err != nil {
		return "", false, err
	}
	return Role(role), true, nil
}

func (r *Repository) TenantMembers(ctx context.Context, tenantID string, tier Tier) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_id
		FROM tenant_members
		WHERE tenant_id = $1 AND role = ANY($2)
		ORDER BY user_id
	`, tenantID, tierRoles(tier))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUserIDs(rows)
}

func (r *Repository) ProjectMembers(ctx context.Context, tenantID, projectID string, tier Tier) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_id
		FROM project_members
		WHERE tenant_id = $1 AND project_id = $2 AND role = ANY($3)
		ORDER BY user_id
	`, tenantID, projectID, tierRoles(tier))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUserIDs(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanUserIDs(rows rowScanner) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}
