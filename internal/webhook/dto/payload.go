package dto

import (
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// SubscriptionWebhookPayload is the body of every subscription.* event
type SubscriptionWebhookPayload struct {
	TenantID         string                   `json:"tenant_id"`
	Plan             types.Plan               `json:"plan"`
	Status           types.SubscriptionStatus `json:"status"`
	PreviousPlan     types.Plan               `json:"previous_plan,omitempty"`
	Amount           int64                    `json:"amount"`
	Currency         string                   `json:"currency"`
	PeriodStart      time.Time                `json:"current_period_start"`
	PeriodEnd        time.Time                `json:"current_period_end"`
	NextBillingDate  *time.Time               `json:"next_billing_date,omitempty"`
	PendingPlan      types.Plan               `json:"pending_plan,omitempty"`
	CancelMode       types.CancelMode         `json:"cancel_mode,omitempty"`
	ChargedAmount    int64                    `json:"charged_amount,omitempty"`
	RefundedAmount   int64                    `json:"refunded_amount,omitempty"`
	ChargePaymentKey string                   `json:"charge_payment_key,omitempty"`
	RefundPaymentKey string                   `json:"refund_payment_key,omitempty"`
}

// PaymentFailureWebhookPayload reports a refund that went through while the
// following charge did not
type PaymentFailureWebhookPayload struct {
	TenantID       string `json:"tenant_id"`
	OrderID        string `json:"order_id"`
	RefundedAmount int64  `json:"refunded_amount"`
	ChargeAmount   int64  `json:"charge_amount"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// CardWebhookPayload describes a card registry change. Billing keys are never included.
type CardWebhookPayload struct {
	TenantID  string         `json:"tenant_id"`
	CardID    string         `json:"card_id"`
	CardInfo  types.CardInfo `json:"card_info"`
	IsPrimary bool           `json:"is_primary"`
	CardCount int            `json:"card_count"`
}
