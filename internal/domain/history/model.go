package history

import (
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// Record is one segment of the subscription history. A segment with a nil
// PeriodEnd is open; a tenant has at most one open segment.
type Record struct {
	ID          string                   `db:"id" json:"id" dynamodbav:"id"`
	TenantID    string                   `db:"tenant_id" json:"tenant_id" dynamodbav:"tenant_id"`
	OwnerUserID string                   `db:"owner_user_id" json:"owner_user_id" dynamodbav:"owner_user_id"`
	Plan        types.Plan               `db:"plan" json:"plan" dynamodbav:"plan"`
	Status      types.SubscriptionStatus `db:"status" json:"status" dynamodbav:"status"`
	Amount      int64                    `db:"amount" json:"amount" dynamodbav:"amount"`
	PeriodStart time.Time                `db:"period_start" json:"period_start" dynamodbav:"period_start"`
	PeriodEnd   *time.Time               `db:"period_end" json:"period_end,omitempty" dynamodbav:"period_end,omitempty"`
	ChangeType  types.ChangeType         `db:"change_type" json:"change_type" dynamodbav:"change_type"`
	ChangedAt   time.Time                `db:"changed_at" json:"changed_at" dynamodbav:"changed_at"`
	ChangedBy   string                   `db:"changed_by" json:"changed_by" dynamodbav:"changed_by"`
	Note        string                   `db:"note" json:"note,omitempty" dynamodbav:"note"`
}

// IsOpen reports whether the segment is still running
func (r *Record) IsOpen() bool {
	return r.PeriodEnd == nil
}
