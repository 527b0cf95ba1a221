package membership

import "context"

// Role is the closed set of tenant/project role strings. The notification
// fan-out policy only cares about the coarse tier split below.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

type Tier string

const (
	// TierOperator covers internal staff roles.
	TierOperator Tier = "operator"
	// TierClient covers external collaborators.
	TierClient Tier = "client"
)

func (r Role) Tier() (Tier, bool) {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff:
		return TierOperator, true
	case RoleClient:
		return TierClient, true
	}
	return "", false
}

// Resolver is the read-only membership view consumed by fan-out and the
// role-gated endpoints. Implementations must be deterministic: the same
// snapshot yields the same answers on every call.
type Resolver interface {
	// TenantRole returns the user's tenant-level role. The second return is
	// false when the user is not a member of the tenant.
	TenantRole(ctx context.Context, tenantID, userID string) (Role, bool, error)

	// TenantMembers lists user IDs holding a role in the given tier,
	// deduplicated and sorted.
	TenantMembers(ctx context.Context, tenantID string, tier Tier) ([]string, error)

	// ProjectMembers lists user IDs holding a project-level role in the given
	// tier for one project, deduplicated and sorted.
	ProjectMembers(ctx context.Context, tenantID, projectID string, tier Tier) ([]string, error)
}
