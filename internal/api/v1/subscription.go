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

type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewSubscriptionHandler(service service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, log: log}
}

// @Summary Start trial
// @Description Start a free trial for a tenant without a subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.CreateTrialRequest true "Trial request"
// @Success 201 {object} dto.LifecycleResult
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /tenants/{tenant_id}/subscription/trial [post]
func (h *SubscriptionHandler) CreateTrial(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.CreateTrialRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID

	resp, err := h.service.CreateTrial(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to create trial", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Checkout
// @Description Register a card and start a paid subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.CheckoutRequest true "Checkout request"
// @Success 201 {object} dto.LifecycleResult
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /tenants/{tenant_id}/subscription/checkout [post]
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID

	resp, err := h.service.Checkout(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to checkout", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get subscription
// @Tags Subscriptions
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 403 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /tenants/{tenant_id}/subscription [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	resp, err := h.service.GetSubscription(c.Request.Context(), dto.GetSubscriptionRequest{
		TenantID:  tenantID,
		Requester: dto.RequesterFromContext(c.Request.Context()),
	})
	if err != nil {
		h.log.Errorw("failed to get subscription", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Convert trial
// @Description Move a trial onto a paid plan now or at trial end
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.ConvertTrialRequest true "Conversion request"
// @Success 200 {object} dto.LifecycleResult
// @Router /tenants/{tenant_id}/subscription/convert [post]
func (h *SubscriptionHandler) ConvertTrial(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.ConvertTrialRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID
	req.Requester = dto.RequesterFromContext(c.Request.Context())

	resp, err := h.service.ConvertTrial(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to convert trial", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Change plan
// @Description Change the plan immediately with proration or at the next billing date
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.ChangePlanRequest true "Plan change request"
// @Success 200 {object} dto.LifecycleResult
// @Failure 502 {object} ierr.ErrorResponse
// @Router /tenants/{tenant_id}/subscription/change [post]
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.ChangePlanRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID
	req.Requester = dto.RequesterFromContext(c.Request.Context())

	resp, err := h.service.ChangePlan(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to change plan", "tenant_id", tenantID, "plan", req.Plan, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Preview plan change
// @Description Show the credit and prorated charge of an immediate plan change
// @Tags Subscriptions
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param plan query string true "Target plan"
// @Success 200 {object} dto.PlanChangePreviewResponse
// @Router /tenants/{tenant_id}/subscription/change/preview [get]
func (h *SubscriptionHandler) PreviewPlanChange(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	plan := types.Plan(c.Query("plan"))
	if err := plan.Validate(); err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.PreviewPlanChange(c.Request.Context(), tenantID, plan, dto.RequesterFromContext(c.Request.Context()))
	if err != nil {
		h.log.Errorw("failed to preview plan change", "tenant_id", tenantID, "plan", plan, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel scheduled plan change
// @Tags Subscriptions
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Success 200 {object} dto.LifecycleResult
// @Router /tenants/{tenant_id}/subscription/change [delete]
func (h *SubscriptionHandler) CancelScheduledChange(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	resp, err := h.service.CancelScheduledChange(c.Request.Context(), dto.CancelScheduledChangeRequest{
		TenantID:  tenantID,
		Requester: dto.RequesterFromContext(c.Request.Context()),
	})
	if err != nil {
		h.log.Errorw("failed to cancel scheduled change", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel subscription
// @Description Cancel at period end or immediately with a refund of unused days
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.CancelRequest true "Cancel request"
// @Success 200 {object} dto.LifecycleResult
// @Router /tenants/{tenant_id}/subscription/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.CancelRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID
	req.Requester = dto.RequesterFromContext(c.Request.Context())

	resp, err := h.service.Cancel(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to cancel subscription", "tenant_id", tenantID, "mode", req.Mode, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Reactivate subscription
// @Description Undo a scheduled cancellation
// @Tags Subscriptions
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Success 200 {object} dto.LifecycleResult
// @Router /tenants/{tenant_id}/subscription/reactivate [post]
func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	resp, err := h.service.Reactivate(c.Request.Context(), dto.ReactivateRequest{
		TenantID:  tenantID,
		Requester: dto.RequesterFromContext(c.Request.Context()),
	})
	if err != nil {
		h.log.Errorw("failed to reactivate subscription", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Resubscribe
// @Description Restart a canceled or expired subscription with the stored card
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.ResubscribeRequest true "Resubscribe request"
// @Success 200 {object} dto.LifecycleResult
// @Router /tenants/{tenant_id}/subscription/resubscribe [post]
func (h *SubscriptionHandler) Resubscribe(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.ResubscribeRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID
	req.Requester = dto.RequesterFromContext(c.Request.Context())

	resp, err := h.service.Resubscribe(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to resubscribe", "tenant_id", tenantID, "plan", req.Plan, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Admin edit
// @Description Override billing fields and optionally record a manual payment
// @Tags Admin
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.AdminEditRequest true "Edit request"
// @Success 200 {object} dto.LifecycleResult
// @Failure 403 {object} ierr.ErrorResponse
// @Router /admin/tenants/{tenant_id}/subscription [patch]
func (h *SubscriptionHandler) AdminEdit(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.AdminEditRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID
	req.Requester = dto.RequesterFromContext(c.Request.Context())

	resp, err := h.service.AdminEdit(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to edit subscription", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Process period end
// @Description Apply the time based transition due for a tenant. Called by the scheduler.
// @Tags Admin
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Success 200 {object} dto.LifecycleResult
// @Router /admin/tenants/{tenant_id}/subscription/period-end [post]
func (h *SubscriptionHandler) ProcessPeriodEnd(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	if !types.IsAdmin(c.Request.Context()) {
		c.Error(ierr.NewError("period end processing requires an admin").
			WithHint("Only administrators can run period end processing").
			Mark(ierr.ErrPermissionDenied))
		return
	}

	resp, err := h.service.ProcessPeriodEnd(c.Request.Context(), dto.ProcessPeriodEndRequest{
		TenantID: tenantID,
	})
	if err != nil {
		h.log.Errorw("failed to process period end", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
