package card

import (
	"github.com/acctportal/billingcore/internal/types"
)

// Card is a stored payment instrument identified at the gateway by its billing key
type Card struct {
	ID          string         `db:"id" json:"id" dynamodbav:"id"`
	BillingKey  string         `db:"billing_key" json:"-" dynamodbav:"billing_key"`
	CustomerKey string         `db:"customer_key" json:"-" dynamodbav:"customer_key"`
	CardInfo    types.CardInfo `db:"card_info" json:"card_info" dynamodbav:"card_info"`
	Alias       string         `db:"alias" json:"alias,omitempty" dynamodbav:"alias"`
	IsPrimary   bool           `db:"is_primary" json:"is_primary" dynamodbav:"is_primary"`

	types.BaseModel
}
