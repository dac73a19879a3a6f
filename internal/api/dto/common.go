package dto

import (
	"context"

	"github.com/acctportal/billingcore/internal/types"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// Requester identifies who asked for a change. Admin status is decided
// upstream; the core only trusts the flag.
type Requester struct {
	RequesterUserID string `json:"-"`
	IsAdmin         bool   `json:"-"`
}

// RequesterFromContext reads the caller identity set by the request middleware
func RequesterFromContext(ctx context.Context) Requester {
	return Requester{
		RequesterUserID: types.GetUserID(ctx),
		IsAdmin:         types.IsAdmin(ctx),
	}
}
