package middleware

import (
	"time"

	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware returns a middleware that captures panics and tags the
// hub with the tenant and request being served
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// SentryScopeMiddleware must run after SentryMiddleware and RequesterMiddleware
func SentryScopeMiddleware(c *gin.Context) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		ctx := c.Request.Context()
		hub.ConfigureScope(func(scope *sentry.Scope) {
			if tenantID := types.GetTenantID(ctx); tenantID != "" {
				scope.SetTag("tenant_id", tenantID)
			}
			if requestID := types.GetRequestID(ctx); requestID != "" {
				scope.SetTag("request_id", requestID)
			}
		})
	}
	c.Next()
}
