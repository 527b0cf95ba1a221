package grpcx

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDMetadataKey carries the request id over gRPC metadata. Metadata
// keys are lowercased on the wire, so it is declared lowercase here.
const RequestIDMetadataKey = "x-request-id"

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func NewRequestID() string {
	return uuid.NewString()
}
