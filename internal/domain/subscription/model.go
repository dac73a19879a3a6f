package subscription

import (
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// Subscription is the single billing record of a tenant. Its status decides
// whether the tenant's service is entitled to run.
type Subscription struct {
	ID          string `db:"id" json:"id" dynamodbav:"id"`
	OwnerUserID string `db:"owner_user_id" json:"owner_user_id" dynamodbav:"owner_user_id"`
	Email       string `db:"email" json:"email" dynamodbav:"email"`
	DisplayName string `db:"display_name" json:"display_name" dynamodbav:"display_name"`

	Plan   types.Plan               `db:"plan" json:"plan" dynamodbav:"plan"`
	Status types.SubscriptionStatus `db:"status" json:"status" dynamodbav:"status"`

	// Amount is what the current period actually cost, possibly prorated
	Amount int64 `db:"amount" json:"amount" dynamodbav:"amount"`
	// BaseAmount is the plan list price
	BaseAmount int64 `db:"base_amount" json:"base_amount" dynamodbav:"base_amount"`
	// AmountPeriodDays is the day count Amount was prorated against
	AmountPeriodDays int    `db:"amount_period_days" json:"amount_period_days" dynamodbav:"amount_period_days"`
	Currency         string `db:"currency" json:"currency" dynamodbav:"currency"`

	CurrentPeriodStart      time.Time  `db:"current_period_start" json:"current_period_start" dynamodbav:"current_period_start"`
	CurrentPeriodEnd        time.Time  `db:"current_period_end" json:"current_period_end" dynamodbav:"current_period_end"`
	NextBillingDate         *time.Time `db:"next_billing_date" json:"next_billing_date,omitempty" dynamodbav:"next_billing_date,omitempty"`
	PreviousNextBillingDate *time.Time `db:"previous_next_billing_date" json:"previous_next_billing_date,omitempty" dynamodbav:"previous_next_billing_date,omitempty"`

	// BillingKey, CustomerKey and CardInfo mirror the tenant's primary card
	BillingKey  string         `db:"billing_key" json:"-" dynamodbav:"billing_key"`
	CustomerKey string         `db:"customer_key" json:"-" dynamodbav:"customer_key"`
	CardInfo    types.CardInfo `db:"card_info" json:"card_info" dynamodbav:"card_info"`

	PendingPlan   types.Plan `db:"pending_plan" json:"pending_plan,omitempty" dynamodbav:"pending_plan"`
	PendingAmount int64      `db:"pending_amount" json:"pending_amount,omitempty" dynamodbav:"pending_amount"`

	CancelMode   types.CancelMode `db:"cancel_mode" json:"cancel_mode,omitempty" dynamodbav:"cancel_mode"`
	CancelReason string           `db:"cancel_reason" json:"cancel_reason,omitempty" dynamodbav:"cancel_reason"`
	CanceledAt   *time.Time       `db:"canceled_at" json:"canceled_at,omitempty" dynamodbav:"canceled_at,omitempty"`

	PreviousPlan   types.Plan `db:"previous_plan" json:"previous_plan,omitempty" dynamodbav:"previous_plan"`
	PreviousAmount int64      `db:"previous_amount" json:"previous_amount,omitempty" dynamodbav:"previous_amount"`

	// Version is bumped by every successful update and checked on write
	Version int `db:"version" json:"version" dynamodbav:"version"`

	types.BaseModel
}

// HasBillingKey reports whether a card is on file
func (s *Subscription) HasBillingKey() bool {
	return s.BillingKey != ""
}

// HasPendingChange reports whether a plan change is queued for the next cycle
func (s *Subscription) HasPendingChange() bool {
	return s.PendingPlan != ""
}

// ClearPendingChange drops any queued plan change
func (s *Subscription) ClearPendingChange() {
	s.PendingPlan = ""
	s.PendingAmount = 0
}

// IsProrated reports whether the current amount covers a partial cycle
func (s *Subscription) IsProrated() bool {
	return s.Amount != s.BaseAmount
}

// SetPrimaryCard refreshes the cached primary card fields
func (s *Subscription) SetPrimaryCard(billingKey, customerKey string, info types.CardInfo) {
	s.BillingKey = billingKey
	s.CustomerKey = customerKey
	s.CardInfo = info
}

// Clone returns a deep copy so callers can mutate freely before committing
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.NextBillingDate = cloneTime(s.NextBillingDate)
	c.PreviousNextBillingDate = cloneTime(s.PreviousNextBillingDate)
	c.CanceledAt = cloneTime(s.CanceledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
