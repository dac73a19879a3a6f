package v1

import (
	"net/http"

	"github.com/acctportal/billingcore/internal/api/dto"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/service"
	"github.com/gin-gonic/gin"
)

type CardHandler struct {
	service service.CardService
	log     *logger.Logger
}

func NewCardHandler(service service.CardService, log *logger.Logger) *CardHandler {
	return &CardHandler{service: service, log: log}
}

func cardParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("card ID is required").
			WithHint("Please provide a valid card ID").
			Mark(ierr.ErrValidation))
		return "", false
	}
	return id, true
}

// @Summary List cards
// @Tags Cards
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Success 200 {object} dto.ListCardsResponse
// @Router /tenants/{tenant_id}/cards [get]
func (h *CardHandler) ListCards(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	resp, err := h.service.ListCards(c.Request.Context(), tenantID, dto.RequesterFromContext(c.Request.Context()))
	if err != nil {
		h.log.Errorw("failed to list cards", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Add card
// @Description Store an already issued billing key
// @Tags Cards
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.AddCardRequest true "Card"
// @Success 201 {object} dto.CardResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /tenants/{tenant_id}/cards [post]
func (h *CardHandler) AddCard(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.AddCardRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID
	req.Requester = dto.RequesterFromContext(c.Request.Context())

	resp, err := h.service.AddCard(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to add card", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Register card
// @Description Exchange a card authorization for a billing key and store it
// @Tags Cards
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param request body dto.RegisterCardRequest true "Authorization"
// @Success 201 {object} dto.CardResponse
// @Router /tenants/{tenant_id}/cards/register [post]
func (h *CardHandler) RegisterCard(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req dto.RegisterCardRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	req.TenantID = tenantID
	req.Requester = dto.RequesterFromContext(c.Request.Context())

	resp, err := h.service.RegisterCard(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to register card", "tenant_id", tenantID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Remove card
// @Tags Cards
// @Param tenant_id path string true "Tenant ID"
// @Param id path string true "Card ID"
// @Success 204
// @Router /tenants/{tenant_id}/cards/{id} [delete]
func (h *CardHandler) RemoveCard(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	id, ok := cardParam(c)
	if !ok {
		return
	}

	if err := h.service.RemoveCard(c.Request.Context(), tenantID, id, dto.RequesterFromContext(c.Request.Context())); err != nil {
		h.log.Errorw("failed to remove card", "tenant_id", tenantID, "card_id", id, "error", err)
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Set primary card
// @Tags Cards
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param id path string true "Card ID"
// @Success 200 {object} dto.CardResponse
// @Router /tenants/{tenant_id}/cards/{id}/primary [post]
func (h *CardHandler) SetPrimary(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	id, ok := cardParam(c)
	if !ok {
		return
	}

	resp, err := h.service.SetPrimary(c.Request.Context(), tenantID, id, dto.RequesterFromContext(c.Request.Context()))
	if err != nil {
		h.log.Errorw("failed to set primary card", "tenant_id", tenantID, "card_id", id, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update card alias
// @Tags Cards
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant ID"
// @Param id path string true "Card ID"
// @Param request body dto.UpdateCardAliasRequest true "Alias"
// @Success 200 {object} dto.CardResponse
// @Router /tenants/{tenant_id}/cards/{id} [put]
func (h *CardHandler) UpdateAlias(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	id, ok := cardParam(c)
	if !ok {
		return
	}

	var req dto.UpdateCardAliasRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.UpdateAlias(c.Request.Context(), tenantID, id, req, dto.RequesterFromContext(c.Request.Context()))
	if err != nil {
		h.log.Errorw("failed to update card alias", "tenant_id", tenantID, "card_id", id, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
