package fanout

import (
	"context"
	"sort"

	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/membership"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/outbox"
)

// outwardFacing lists the event types that operator-tier actors are allowed
// to surface to client-tier project members. Deliberately narrow.
var outwardFacing = map[string]bool{
	"request.created": true,
}

// Resolver computes the recipient set for one event from the membership
// snapshot. It is deterministic: same event + same snapshot = same recipients,
// which makes dispatcher retries idempotent.
type Resolver struct {
	members membership.Resolver
}

func NewResolver(members membership.Resolver) *Resolver {
	return &Resolver{members: members}
}

// Resolve maps an event to recipient user IDs, sorted and deduplicated.
//
// Rule A: a client-tier actor broadcasts to every operator-tier tenant member.
// Rule B: an operator-tier actor reaches client-tier members of the event's
// project, but only for outward-facing event types.
// Anything else resolves to an empty set; that is policy, not an error.
func (r *Resolver) Resolve(ctx context.Context, rcd outbox.Record, env outbox.Envelope) ([]string, error) {
	role, found, err := r.members.TenantRole(ctx, rcd.TenantID, env.ActorUserID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	tier, ok := role.Tier()
	if !ok {
		return nil, nil
	}

	switch tier {
	case membership.TierClient:
		recipients, err := r.members.TenantMembers(ctx, rcd.TenantID, membership.TierOperator)
		if err != nil {
			return nil, err
		}
		return normalize(recipients, env.ActorUserID), nil

	case membership.TierOperator:
		if !outwardFacing[rcd.EventType] {
			return nil, nil
		}
		projectID := env.ProjectID()
		if projectID == "" {
			return nil, nil
		}
		recipients, err := r.members.ProjectMembers(ctx, rcd.TenantID, projectID, membership.TierClient)
		if err != nil {
			return nil, err
		}
		return normalize(recipients, env.ActorUserID), nil
	}
	return nil, nil
}

// normalize dedups, drops the actor (no self-notification), and sorts.
func normalize(ids []string, actor string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == actor || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
