package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TransactionType distinguishes money taken from money returned
type TransactionType string

const (
	TransactionTypeCharge TransactionType = "charge"
	TransactionTypeRefund TransactionType = "refund"
)

// PaymentType records which lifecycle operation produced a ledger row
type PaymentType string

const (
	PaymentTypeSubscription    PaymentType = "subscription"
	PaymentTypeUpgrade         PaymentType = "upgrade"
	PaymentTypeDowngrade       PaymentType = "downgrade"
	PaymentTypeResubscribe     PaymentType = "resubscribe"
	PaymentTypeCancelRefund    PaymentType = "cancel_refund"
	PaymentTypeAdminManual     PaymentType = "admin_manual"
	PaymentTypeRenewal         PaymentType = "renewal"
	PaymentTypeTrialConversion PaymentType = "trial_conversion"
)

// PaymentTypeForChange maps a plan change classification onto a ledger type
func PaymentTypeForChange(ct ChangeType) PaymentType {
	if ct == ChangeTypeDowngrade {
		return PaymentTypeDowngrade
	}
	return PaymentTypeUpgrade
}

// PaymentStatus is the gateway outcome recorded on a ledger row
type PaymentStatus string

const (
	PaymentStatusDone     PaymentStatus = "done"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusCanceled PaymentStatus = "canceled"
)

// CardInfo is the masked card description returned by the gateway
type CardInfo struct {
	Number    string `json:"number" dynamodbav:"number"`
	Company   string `json:"company" dynamodbav:"company"`
	CardType  string `json:"card_type,omitempty" dynamodbav:"card_type,omitempty"`
	OwnerType string `json:"owner_type,omitempty" dynamodbav:"owner_type,omitempty"`
}

// IsZero reports whether no card details are present
func (c CardInfo) IsZero() bool {
	return c.Number == "" && c.Company == ""
}

// SameCard reports whether two instruments describe the same physical card
func (c CardInfo) SameCard(other CardInfo) bool {
	return c.Company == other.Company && c.Number == other.Number
}

// Value implements driver.Valuer so card details can live in a JSONB column
func (c CardInfo) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for the JSONB card_info column
func (c *CardInfo) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = CardInfo{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CardInfo", src)
	}
	if len(raw) == 0 {
		*c = CardInfo{}
		return nil
	}
	return json.Unmarshal(raw, c)
}
