package middleware

import (
	"encoding/json"
	"strings"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Gateway failures also carry whether a refund already went through so the
// caller can reconcile a partial failure.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)

		detail := ierr.ErrorDetail{
			Display:   getDisplayMessage(err),
			Retryable: ierr.IsRetryable(err),
			Details:   getSafeDetails(err),
		}

		if gwErr, ok := ierr.AsGatewayError(err); ok {
			detail.Code = gwErr.Code
			if gwErr.RefundProcessed {
				detail.Details["refund_processed"] = true
				detail.Details["refunded_amount"] = gwErr.RefundedAmount
			}
		}

		if status >= 500 {
			log.Errorw("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"status", status,
				"error", err)
		}

		c.JSON(status, ierr.ErrorResponse{
			Success: false,
			Error:   detail,
		})
	}
}

func getDisplayMessage(err error) string {
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		// GetAllHints is a post-order traversal, take the first non-empty one
		for _, hint := range hints {
			if hint = strings.TrimSpace(hint); hint != "" {
				return hint
			}
		}
	}

	return "An unexpected error occurred"
}

func getSafeDetails(err error) map[string]any {
	details := make(map[string]any)

	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			if len(payload) > 9 && strings.HasPrefix(payload, "__json__:") {
				var jsonDetails map[string]any
				if err := json.Unmarshal([]byte(payload[9:]), &jsonDetails); err == nil {
					for k, v := range jsonDetails {
						details[k] = v
					}
				}
			}
		}
	}

	return details
}
