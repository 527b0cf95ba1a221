package outbox

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Producer is the narrow interface business operations use to record a fact.
// Publish must be called with the transaction of the business write itself;
// the event and the state change commit or roll back together.
type Producer struct {
	repo *Repository
}

func NewProducer(repo *Repository) *Producer {
	return &Producer{repo: repo}
}

func (p *Producer) Publish(ctx context.Context, tx pgx.Tx, evt Event) error {
	if tx == nil {
		return errors.New("outbox: publish requires an active transaction")
	}
	if evt.TenantID == "" || evt.ActorUserID == "" || evt.EventType == "" {
		return errors.New("outbox: tenant_id, actor_user_id and event_type are required")
	}
	return p.repo.Insert(ctx, tx, evt)
}
