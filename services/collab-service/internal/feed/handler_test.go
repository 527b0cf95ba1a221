package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/identity"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/membership"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/outbox"
)

type fakeLister struct {
	entries   []outbox.FeedEntry
	projectID string
}

func (f *fakeLister) ListRecentByOperators(_ context.Context, _, projectID string, _ int) ([]outbox.FeedEntry, error) {
	f.projectID = projectID
	return f.entries, nil
}

type fakeMembers struct {
	roles map[string]membership.Role
}

func (f *fakeMembers) TenantRole(_ context.Context, _, userID string) (membership.Role, bool, error) {
	role, ok := f.roles[userID]
	return role, ok, nil
}

func (f *fakeMembers) TenantMembers(context.Context, string, membership.Tier) ([]string, error) {
	return nil, nil
}

func (f *fakeMembers) ProjectMembers(context.Context, string, string, membership.Tier) ([]string, error) {
	return nil, nil
}

func request(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/activity?project_id=p-1", nil)
	ctx := identity.WithIdentity(req.Context(), identity.Identity{
		UserID:   userID,
		TenantID: "t-1",
	})
	return req.WithContext(ctx)
}

func TestFeedRejectsNonOperators(t *testing.T) {
	h := NewHandler(&fakeLister{}, &fakeMembers{roles: map[string]membership.Role{
		"client-1": membership.RoleClient,
	}}, slog.Default())

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, request("client-1"))
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client-tier caller, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, request("stranger"))
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", rw.Code)
	}
}

func TestFeedReturnsLocalizedEvents(t *testing.T) {
	lister := &fakeLister{entries: []outbox.FeedEntry{
		{
			EventID:   "e-1",
			EventType: "request.created",
			Payload:   []byte(`{"title":"Logo request","message":"New logo please","actor_user_id":"op-1","business_payload":{"project_id":"p-1","status":"in_progress"}}`),
			CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			EventID:   "e-2",
			EventType: "request.created",
			Payload:   []byte(`not parseable`),
			CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		},
	}}
	h := NewHandler(lister, &fakeMembers{roles: map[string]membership.Role{
		"op-1": membership.RoleAdmin,
	}}, slog.Default())

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, request("op-1"))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if lister.projectID != "p-1" {
		t.Fatalf("expected project filter to pass through, got %q", lister.projectID)
	}

	var body struct {
		Events []struct {
			ID        string `json:"id"`
			EventType string `json:"event_type"`
			Title     string `json:"title"`
			ProjectID string `json:"project_id"`
			Status    string `json:"status"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if len(body.Events) != 1 {
		t.Fatalf("expected 1 event (unparseable row skipped), got %d", len(body.Events))
	}
	got := body.Events[0]
	if got.ID != "e-1" || got.EventType != "New request" || got.Title != "Logo request" || got.ProjectID != "p-1" {
		t.Fatalf("unexpected feed item: %+v", got)
	}
	if got.Status != "In progress" {
		t.Fatalf("expected localized status label, got %q", got.Status)
	}
}
