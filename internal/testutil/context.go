package testutil

import (
	"context"

	"github.com/acctportal/billingcore/internal/types"
)

// SetupContext returns a request context for the default tenant and user
func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.SetTenantID(ctx, types.DefaultTenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}

// AsUser returns ctx acting as userID
func AsUser(ctx context.Context, userID string) context.Context {
	return types.SetUserID(ctx, userID)
}

// AsAdmin returns ctx acting as an administrator
func AsAdmin(ctx context.Context) context.Context {
	return types.SetAdmin(ctx, true)
}
