package cache

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// lookupSpan opens a sentry span for a cache read when the request carries a hub.
// The returned func records hit or miss and finishes the span.
func lookupSpan(ctx context.Context, backend, key string) func(hit bool) {
	if sentry.GetHubFromContext(ctx) == nil {
		return func(bool) {}
	}

	span := sentry.StartSpan(ctx, "db.cache")
	span.Description = "cache." + backend + ".get"
	span.SetData("cache.key", key)
	return func(hit bool) {
		span.SetData("cache.hit", hit)
		span.Status = sentry.SpanStatusOK
		span.Finish()
	}
}
