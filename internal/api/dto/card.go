package dto

import (
	"github.com/acctportal/billingcore/internal/domain/card"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/acctportal/billingcore/internal/validator"
)

// AddCardRequest stores a billing key that was already issued
type AddCardRequest struct {
	TenantID    string         `json:"-" validate:"required"`
	BillingKey  string         `json:"billing_key" validate:"required"`
	CustomerKey string         `json:"customer_key,omitempty"`
	CardInfo    types.CardInfo `json:"card_info"`
	Alias       string         `json:"alias,omitempty" validate:"omitempty,max=50"`
	MakePrimary bool           `json:"make_primary"`
	Requester   `json:"-"`
}

func (r *AddCardRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// RegisterCardRequest exchanges a one-time card authorization for a billing key
type RegisterCardRequest struct {
	TenantID    string `json:"-" validate:"required"`
	AuthKey     string `json:"auth_key" validate:"required"`
	Alias       string `json:"alias,omitempty" validate:"omitempty,max=50"`
	MakePrimary bool   `json:"make_primary"`
	Requester   `json:"-"`
}

func (r *RegisterCardRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type UpdateCardAliasRequest struct {
	Alias string `json:"alias" validate:"max=50"`
}

func (r *UpdateCardAliasRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// CardResponse never carries the billing key
type CardResponse struct {
	*card.Card
}

func NewCardResponse(c *card.Card) *CardResponse {
	return &CardResponse{Card: c}
}

type ListCardsResponse struct {
	Items []*CardResponse `json:"items"`
}
