package domain

import "context"

type contextKey int

const (
	tenantKey contextKey = iota
	actorKey
)

// WithTenant scopes ctx to tenantID. Every task operation requires it.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the tenant set by WithTenant, or
// ErrMissingTenant. There is no fallback tenant.
func TenantFromContext(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(tenantKey).(string)
	if !ok || tenantID == "" {
		return "", ErrMissingTenant
	}
	return tenantID, nil
}

// WithActor records the user performing the request.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// ActorFromContext returns the acting user, or "" for system callers such
// as the sweep scheduler.
func ActorFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(actorKey).(string)
	return userID
}
