package requests

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/identity"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/outbox"
)

// Handler owns the request-creation write path. It is the reference shape for
// every producing operation in the backend: business row and outbox event go
// through one transaction, so the fact and its notification record cannot
// diverge.
type Handler struct {
	repo     *Repository
	producer *outbox.Producer
	logger   *slog.Logger
}

func NewHandler(repo *Repository, producer *outbox.Producer, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, producer: producer, logger: logger}
}

type createRequestBody struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

type createRequestResponse struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	body.ProjectID = strings.TrimSpace(body.ProjectID)
	body.Title = strings.TrimSpace(body.Title)
	if body.ProjectID == "" || body.Title == "" {
		http.Error(w, "project_id and title required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, &Request{
		TenantID:  ident.TenantID,
		ProjectID: body.ProjectID,
		AuthorID:  ident.UserID,
		Title:     body.Title,
		Body:      body.Body,
	})
	if err != nil {
		h.logger.Error("request create failed", "err", err)
		http.Error(w, "failed to create request", http.StatusInternalServerError)
		return
	}

	if err := h.producer.Publish(ctx, tx, outbox.Event{
		TenantID:      ident.TenantID,
		ActorUserID:   ident.UserID,
		AggregateType: "request",
		AggregateID:   id,
		EventType:     "request.created",
		Title:         body.Title,
		Message:       body.Body,
		BusinessPayload: map[string]any{
			"project_id": body.ProjectID,
			"request_id": id,
			"status":     "pending",
		},
	}); err != nil {
		// Losing the event would silently drop the notification forever, so
		// the whole operation fails instead.
		h.logger.Error("outbox publish failed", "err", err)
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createRequestResponse{RequestID: id})
}
