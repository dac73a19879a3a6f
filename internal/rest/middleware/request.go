package middleware

import (
	"context"
	"strconv"

	"github.com/acctportal/billingcore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func RequestIDMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx = context.WithValue(ctx, types.CtxRequestID, requestID)
	c.Request = c.Request.WithContext(ctx)

	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}

// RequesterMiddleware copies the caller identity resolved by the upstream
// auth proxy into the request context. Authentication itself happens there.
func RequesterMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	if userID := c.GetHeader(types.HeaderUserID); userID != "" {
		ctx = types.SetUserID(ctx, userID)
	}
	if tenantID := c.GetHeader(types.HeaderTenantID); tenantID != "" {
		ctx = types.SetTenantID(ctx, tenantID)
	}
	if admin, err := strconv.ParseBool(c.GetHeader(types.HeaderAdmin)); err == nil && admin {
		ctx = types.SetAdmin(ctx, true)
	}

	c.Request = c.Request.WithContext(ctx)
	c.Next()
}
