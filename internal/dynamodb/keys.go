package dynamodb

import (
	"time"
)

// Single table layout. Every item of a tenant shares its partition so one
// TransactWriteItems call can cover a whole billing mutation.
const (
	AttrPK     = "pk"
	AttrSK     = "sk"
	AttrGSI1PK = "gsi1pk"
	AttrGSI1SK = "gsi1sk"

	SKSubscription = "SUBSCRIPTION"
	SKOpenHistory  = "HISTORY_OPEN"

	PrefixPayment     = "PAYMENT#"
	PrefixHistory     = "HISTORY#"
	PrefixCard        = "CARD#"
	PrefixIdempotency = "IDEM#"
)

// Keys are the table and owner index key attributes carried by every item
type Keys struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty"`
}

func TenantPK(tenantID string) string {
	return "TENANT#" + tenantID
}

func OwnerPK(ownerUserID string) string {
	return "OWNER#" + ownerUserID
}

func PaymentSK(id string) string {
	return PrefixPayment + id
}

func CardSK(id string) string {
	return PrefixCard + id
}

// HistorySK orders segments by start time within the tenant partition
func HistorySK(periodStart time.Time, id string) string {
	return PrefixHistory + periodStart.UTC().Format(time.RFC3339Nano) + "#" + id
}

func IdempotencySK(key, transactionType string) string {
	return PrefixIdempotency + key + "#" + transactionType
}
