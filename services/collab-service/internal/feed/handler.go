package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/i18n"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/identity"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/membership"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/outbox"
)

// EventLister is the projection source: recent outbox events with
// operator-tier actors.
type EventLister interface {
	ListRecentByOperators(ctx context.Context, tenantID, projectID string, limit int) ([]outbox.FeedEntry, error)
}

// Handler serves the operator activity feed, a read-only projection over
// recent outbox events. Not the notification inbox: this is what the team
// did, not what the caller should look at.
type Handler struct {
	events  EventLister
	members membership.Resolver
	logger  *slog.Logger
}

func NewHandler(events EventLister, members membership.Resolver, logger *slog.Logger) *Handler {
	return &Handler{events: events, members: members, logger: logger}
}

type feedItem struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ProjectID string `json:"project_id,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	role, found, err := h.members.TenantRole(r.Context(), ident.TenantID, ident.UserID)
	if err != nil {
		h.logger.Error("feed role lookup failed", "err", err)
		http.Error(w, "failed to resolve membership", http.StatusInternalServerError)
		return
	}
	tier, ok := role.Tier()
	if !found || !ok || tier != membership.TierOperator {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	projectID := r.URL.Query().Get("project_id")

	entries, err := h.events.ListRecentByOperators(r.Context(), ident.TenantID, projectID, limit)
	if err != nil {
		h.logger.Error("feed query failed", "err", err)
		http.Error(w, "failed to list activity", http.StatusInternalServerError)
		return
	}

	items := make([]feedItem, 0, len(entries))
	for _, e := range entries {
		var env outbox.Envelope
		if err := json.Unmarshal(e.Payload, &env); err != nil {
			// Feed is a projection; skip rows the dispatcher will dead-letter.
			continue
		}
		item := feedItem{
			ID:        e.EventID,
			EventType: i18n.EventLabel(e.EventType),
			Title:     env.Title,
			Message:   env.Message,
			ProjectID: env.ProjectID(),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if status := env.Status(); status != "" {
			item.Status = i18n.StatusLabel(status)
		}
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": items})
}
