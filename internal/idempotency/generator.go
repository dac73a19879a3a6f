package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Scope represents the scope of idempotency
type Scope string

const (
	ScopeCheckout        Scope = "checkout"
	ScopeTrialConversion Scope = "trial_conversion"
	ScopePlanChange      Scope = "plan_change"
	ScopeCancel          Scope = "cancel"
	ScopeResubscribe     Scope = "resubscribe"
	ScopeRenewal         Scope = "renewal"
	ScopeAdminPayment    Scope = "admin_payment"
)

// Generator generates idempotency keys and gateway order ids
type Generator struct{}

// NewGenerator creates a new idempotency key generator
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateKey generates an idempotency key from a scope and parameters
func (g *Generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%v", k, params[k]))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s-%s", scope, hex.EncodeToString(hash[:8])) // First 8 bytes for readability
}

// ValidateKey validates if an idempotency key matches expected parameters
func (g *Generator) ValidateKey(scope Scope, params map[string]interface{}, key string) bool {
	generated := g.GenerateKey(scope, params)
	return generated == key
}

// OrderID derives the gateway order id for a request. The same tenant, scope
// and caller key always produce the same order id, which lets the gateway
// reject a replay that slipped past the ledger lookup. Without a caller key
// a random nonce keeps order ids unique.
func (g *Generator) OrderID(scope Scope, tenantID, callerKey, nonce string) string {
	params := map[string]interface{}{
		"tenant_id": tenantID,
	}
	if callerKey != "" {
		params["key"] = callerKey
	} else {
		params["nonce"] = nonce
	}
	return g.GenerateKey(scope, params)
}
