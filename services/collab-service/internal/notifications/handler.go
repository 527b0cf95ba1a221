package notifications

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/identity"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/push"
)

type Handler struct {
	repo     *Repository
	registry *push.Registry
	logger   *slog.Logger
}

func NewHandler(repo *Repository, registry *push.Registry, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, registry: registry, logger: logger}
}

type notificationItem struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ReadAt    string `json:"read_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toItem(n Notification) notificationItem {
	item := notificationItem{
		ID:        n.ID,
		EventType: n.EventType,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		item.ReadAt = n.ReadAt.UTC().Format(time.RFC3339)
	}
	return item
}

// List serves GET /api/notifications: the caller's own rows, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	rows, err := h.repo.ListForUser(r.Context(), ident.TenantID, ident.UserID, limit)
	if err != nil {
		h.logger.Error("notification list failed", "err", err)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}

	items := make([]notificationItem, 0, len(rows))
	for _, n := range rows {
		items = append(items, toItem(n))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"notifications": items})
}

// MarkRead serves POST /api/notifications/{id}/read. Ownership is enforced;
// a repeat call is a no-op. The caller's own live stream gets a best-effort
// read acknowledgment so other tabs can update.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := readPathID(r.URL.Path)
	if id == "" {
		http.Error(w, "notification id required", http.StatusBadRequest)
		return
	}

	n, err := h.repo.MarkRead(r.Context(), ident.TenantID, ident.UserID, id)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case err != nil:
		h.logger.Error("mark read failed", "err", err, "notification_id", id)
		http.Error(w, "failed to mark notification read", http.StatusInternalServerError)
		return
	}

	h.registry.Send(ident.UserID, "notification.read", map[string]string{"id": n.ID})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toItem(n))
}

// readPathID extracts {id} from /api/notifications/{id}/read.
func readPathID(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/notifications/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/read")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
