package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/acctportal/billingcore/internal/types"
	"github.com/sourcegraph/conc"
)

const publishTimeout = 5 * time.Second

// Notifier publishes webhook events off the request path. Failures are
// logged and reported, never returned to the caller.
type Notifier struct {
	ServiceParams
	wg conc.WaitGroup
}

func NewNotifier(params ServiceParams) *Notifier {
	return &Notifier{ServiceParams: params}
}

// Notify queues one event for the tenant
func (n *Notifier) Notify(ctx context.Context, eventName, tenantID string, payload any) {
	if !n.Config.Webhook.Enabled || n.WebhookPublisher == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		n.Logger.Errorw("failed to encode webhook payload",
			"error", err,
			"event_name", eventName,
			"tenant_id", tenantID,
		)
		return
	}

	event := &types.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName: eventName,
		TenantID:  tenantID,
		UserID:    types.GetUserID(ctx),
		Timestamp: n.now().UTC(),
		Payload:   data,
	}

	detached := context.WithoutCancel(ctx)
	n.wg.Go(func() {
		ctx, cancel := context.WithTimeout(detached, publishTimeout)
		defer cancel()

		if err := n.WebhookPublisher.PublishWebhook(ctx, event); err != nil {
			n.Logger.Errorw("failed to publish webhook",
				"error", err,
				"event_id", event.ID,
				"event_name", eventName,
				"tenant_id", tenantID,
			)
			n.Sentry.CaptureTenantException(ctx, err, map[string]string{"event_name": eventName})
		}
	})
}

// Wait blocks until every queued event was handed to the publisher
func (n *Notifier) Wait() {
	n.wg.Wait()
}
