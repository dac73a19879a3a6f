package httpclient

import (
	"context"
	"fmt"
	"net"

	ierr "github.com/acctportal/billingcore/internal/errors"
)

// Error represents a non-2xx response
type Error struct {
	StatusCode int
	Response   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("http client error: status %d", e.StatusCode)
}

// NewError wraps a non-2xx response, marked as an HTTP client error
func NewError(statusCode int, response []byte) error {
	return ierr.WithError(&Error{StatusCode: statusCode, Response: response}).
		WithHintf("Remote service responded with status %d", statusCode).
		Mark(ierr.ErrHTTPClient)
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if ierr.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// TransportError is a failure before any response was received
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err never reached the remote side
func IsTransportError(err error) (*TransportError, bool) {
	var tErr *TransportError
	if ierr.As(err, &tErr) {
		return tErr, true
	}
	return nil, false
}

func isTimeout(ctx context.Context, err error) bool {
	if ierr.Is(ctx.Err(), context.DeadlineExceeded) || ierr.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return ierr.As(err, &netErr) && netErr.Timeout()
}
