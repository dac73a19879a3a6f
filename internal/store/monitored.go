package store

import (
	"context"

	"github.com/acctportal/billingcore/internal/sentry"
)

// MonitoredTransactor reports each unit of work as a Sentry span
type MonitoredTransactor struct {
	next   Transactor
	sentry *sentry.Service
}

func NewMonitoredTransactor(next Transactor, sentry *sentry.Service) Transactor {
	return &MonitoredTransactor{next: next, sentry: sentry}
}

func (m *MonitoredTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	span, spanCtx := m.sentry.StartDBSpan(ctx, "store.transaction", map[string]interface{}{
		"operation": "transaction",
	})
	if span != nil {
		defer span.Finish()
	}
	return m.next.WithTx(spanCtx, fn)
}
