//go:build protogen

package membership

import (
	"context"
	"log/slog"
	"time"

	"github.com/yw9142/ProjectBridge-sub000/libs/db"
	"github.com/yw9142/ProjectBridge-sub000/libs/grpcx"
	directoryv1 "github.com/yw9142/ProjectBridge-sub000/protos/gen/directory/v1"
)

type grpcProvider struct {
	client directoryv1.DirectoryServiceClient
}

// NewDirectoryProvider dials the directory service when an address is
// configured, falling back to the shared-table resolver otherwise.
func NewDirectoryProvider(logger *slog.Logger, pool *db.Pool, addr string) (Resolver, error) {
	if addr == "" {
		return NewRepository(pool), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc directory provider unavailable, using shared tables", "err", err)
		return NewRepository(pool), nil
	}

	logger.Info("grpc directory provider enabled", "addr", addr)
	return &grpcProvider{client: directoryv1.NewDirectoryServiceClient(conn)}, nil
}

func (p *grpcProvider) TenantRole(ctx context.Context, tenantID, userID string) (Role, bool, error) {
	resp, err := p.client.GetTenantRole(ctx, &directoryv1.TenantRoleRequest{
		TenantId: tenantID,
		UserId:   userID,
	})
	if err != nil {
		return "", false, err
	}
	if resp.GetRole() == "" {
		return "", false, nil
	}
	return Role(resp.GetRole()), true, nil
}

func (p *grpcProvider) TenantMembers(ctx context.Context, tenantID string, tier Tier) ([]string, error) {
	resp, err := p.client.ListTenantMembers(ctx, &directoryv1.TenantMembersRequest{
		TenantId: tenantID,
		Roles:    tierRoles(tier),
	})
	if err != nil {
		return nil, err
	}
	return resp.GetUserIds(), nil
}

func (p *grpcProvider) ProjectMembers(ctx context.Context, tenantID, projectID string, tier Tier) ([]string, error) {
	resp, err := p.client.ListProjectMembers(ctx, &directoryv1.ProjectMembersRequest{
		TenantId:  tenantID,
		ProjectId: projectID,
		Roles:     tierRoles(tier),
	})
	if err != nil {
		return nil, err
	}
	return resp.GetUserIds(), nil
}
