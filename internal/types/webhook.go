package types

import (
	"encoding/json"
	"time"
)

// WebhookEvent represents a webhook event to be delivered
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	UserID    string          `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// subscription event names
const (
	WebhookEventSubscriptionCreated       = "subscription.created"
	WebhookEventSubscriptionActivated     = "subscription.activated"
	WebhookEventSubscriptionPlanChanged   = "subscription.plan_changed"
	WebhookEventSubscriptionChangeQueued  = "subscription.change_scheduled"
	WebhookEventSubscriptionChangeDropped = "subscription.change_unscheduled"
	WebhookEventSubscriptionCancelQueued  = "subscription.cancel_scheduled"
	WebhookEventSubscriptionCanceled      = "subscription.canceled"
	WebhookEventSubscriptionReactivated   = "subscription.reactivated"
	WebhookEventSubscriptionResubscribed  = "subscription.resubscribed"
	WebhookEventSubscriptionRenewed       = "subscription.renewed"
	WebhookEventSubscriptionExpired       = "subscription.expired"
	WebhookEventSubscriptionAdminEdited   = "subscription.admin_edited"
)

// payment event names
const (
	WebhookEventPaymentPartialFailure = "payment.partial_failure"
)

// card event names
const (
	WebhookEventCardAdded          = "card.added"
	WebhookEventCardRemoved        = "card.removed"
	WebhookEventCardPrimaryChanged = "card.primary_changed"
)
