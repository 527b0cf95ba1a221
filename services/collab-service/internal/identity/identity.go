package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/yw9142/ProjectBridge-sub000/libs/auth"
	"github.com/yw9142/ProjectBridge-sub000/libs/httpx"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/membership"
)

// Identity is the caller extracted from a verified bearer token. Tokens are
// issued by the external auth service; this service only verifies them.
type Identity struct {
	UserID   string
	TenantID string
	Role     membership.Role
}

type ctxKey int

const ctxKeyIdentity ctxKey = iota

func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return ident, ok
}

func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, ident)
}

// Middleware verifies the Authorization bearer token and stores the caller
// identity in the request context. Requests without a valid token get 401.
func Middleware(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Sub == "" || claims.TenantID == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ident := Identity{
				UserID:   claims.Sub,
				TenantID: claims.TenantID,
				Role:     membership.Role(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}
