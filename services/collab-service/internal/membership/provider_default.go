//go:build !protogen

package membership

import (
	"log/slog"

	"github.com/yw9142/ProjectBridge-sub000/libs/db"
)

// NewDirectoryProvider returns the membership resolver. Without generated
// protos the directory gRPC client is unavailable and memberships are read
// from the shared tables directly.
func NewDirectoryProvider(_ *slog.Logger, pool *db.Pool, _ string) (Resolver, error) {
	return NewRepository(pool), nil
}
