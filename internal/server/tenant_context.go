package server

import "context"

type ctxKey int

const (
	ctxKeyTenant ctxKey = iota
	ctxKeyRole
)

func withTenant(ctx context.Context, tenant Tenant) context.Context {
	return context.WithValue(ctx, ctxKeyTenant, tenant)
}

func currentTenant(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(ctxKeyTenant).(Tenant)
	return t, ok
}

func withRole(ctx context.Context, roleSlug string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, roleSlug)
}

func currentRole(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyRole).(string)
	return s, ok
}
