package v1

import (
	"net/http"

	"github.com/acctportal/billingcore/internal/api/dto"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/service"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/gin-gonic/gin"
)

type HistoryHandler struct {
	service service.HistoryService
	log     *logger.Logger
}

func NewHistoryHandler(service service.HistoryService, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{service: service, log: log}
}

// @Summary Tenant subscription history
// @Description Billing period segments of one tenant, newest first
// @Tags History
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param filter query types.PageFilter false "Page"
// @Success 200 {object} dto.ListHistoryResponse
// @Router /tenants/{tenant_id}/history [get]
func (h *HistoryHandler) ListByTenant(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var filter types.PageFilter
	if !h.bindPage(c, &filter) {
		return
	}

	resp, err := h.service.ListByTenant(c.Request.Context(), tenantID, dto.RequesterFromContext(c.Request.Context()), filter)
	if err != nil {
		h.log.Errorw("failed to list tenant history", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Owner subscription history
// @Description Billing period segments across every tenant the user owns, newest first
// @Tags History
// @Produce json
// @Param user_id path string true "Owner user ID"
// @Param filter query types.PageFilter false "Page"
// @Success 200 {object} dto.ListHistoryResponse
// @Router /users/{user_id}/history [get]
func (h *HistoryHandler) ListByOwner(c *gin.Context) {
	ownerID := c.Param("user_id")
	if ownerID == "" {
		c.Error(ierr.NewError("user ID is required").
			WithHint("Please provide a valid user ID").
			Mark(ierr.ErrValidation))
		return
	}

	var filter types.PageFilter
	if !h.bindPage(c, &filter) {
		return
	}

	resp, err := h.service.ListByOwner(c.Request.Context(), ownerID, dto.RequesterFromContext(c.Request.Context()), filter)
	if err != nil {
		h.log.Errorw("failed to list owner history", "owner_user_id", ownerID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HistoryHandler) bindPage(c *gin.Context, filter *types.PageFilter) bool {
	if err := c.ShouldBindQuery(filter); err != nil {
		h.log.Errorw("failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return false
	}
	return true
}
