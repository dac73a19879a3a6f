package v1

import (
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/gin-gonic/gin"
)

func tenantParam(c *gin.Context) (string, bool) {
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		c.Error(ierr.NewError("tenant ID is required").
			WithHint("Please provide a valid tenant ID").
			Mark(ierr.ErrValidation))
		return "", false
	}
	return tenantID, true
}

func bindJSON(c *gin.Context, log *logger.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		log.Errorw("failed to bind JSON", "path", c.FullPath(), "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return false
	}
	return true
}
