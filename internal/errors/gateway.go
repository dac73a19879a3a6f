package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// GatewayError describes a failed payment gateway call. It is always
// marked with ErrGateway so errors.Is works alongside errors.As.
type GatewayError struct {
	Op         string // charge, refund, get_payment, issue_billing_key
	Code       string // gateway specific error code
	Message    string
	StatusCode int
	Timeout    bool

	// RefundProcessed is set when a refund already went through before the
	// failing call, leaving money moved that the caller has to reconcile.
	RefundProcessed bool
	RefundedAmount  int64

	Err error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s failed", e.Op)
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Timeout {
		msg += " (timeout)"
	}
	if e.Err != nil && e.Message == "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the call may succeed if repeated. A partial
// failure is never retryable since the refund leg already moved money.
func (e *GatewayError) IsRetryable() bool {
	if e.RefundProcessed {
		return false
	}
	if e.Timeout {
		return true
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// NewGatewayError wraps a gateway failure with a user facing hint and the
// gateway sentinel mark.
func NewGatewayError(gwErr *GatewayError) error {
	details := map[string]any{
		"op":        gwErr.Op,
		"retryable": gwErr.IsRetryable(),
	}
	if gwErr.Code != "" {
		details["gateway_code"] = gwErr.Code
	}
	if gwErr.RefundProcessed {
		details["refund_processed"] = true
		details["refunded_amount"] = gwErr.RefundedAmount
	}

	hint := "Payment provider request failed"
	if gwErr.Timeout {
		hint = "Payment provider did not respond in time"
	}
	if gwErr.RefundProcessed {
		hint = "Refund was processed but the new charge failed"
	}

	return WithError(gwErr).
		WithHint(hint).
		WithReportableDetails(details).
		Mark(ErrGateway)
}

// AsGatewayError extracts the typed gateway error from a chain
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}
