package service

import (
	"context"

	"github.com/acctportal/billingcore/internal/api/dto"
	"github.com/acctportal/billingcore/internal/domain/card"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/gateway"
	"github.com/acctportal/billingcore/internal/types"
	webhookDto "github.com/acctportal/billingcore/internal/webhook/dto"
	"github.com/samber/lo"
)

// CardService manages a tenant's stored cards and keeps the subscription's
// cached billing key pointed at the primary one
type CardService interface {
	AddCard(ctx context.Context, req dto.AddCardRequest) (*dto.CardResponse, error)
	// RegisterCard issues a billing key at the gateway and stores it
	RegisterCard(ctx context.Context, req dto.RegisterCardRequest) (*dto.CardResponse, error)
	RemoveCard(ctx context.Context, tenantID, cardID string, requester dto.Requester) error
	SetPrimary(ctx context.Context, tenantID, cardID string, requester dto.Requester) (*dto.CardResponse, error)
	UpdateAlias(ctx context.Context, tenantID, cardID string, req dto.UpdateCardAliasRequest, requester dto.Requester) (*dto.CardResponse, error)
	ListCards(ctx context.Context, tenantID string, requester dto.Requester) (*dto.ListCardsResponse, error)
}

type cardService struct {
	ServiceParams
	notifier *Notifier
}

func NewCardService(params ServiceParams, notifier *Notifier) CardService {
	return &cardService{ServiceParams: params, notifier: notifier}
}

func (s *cardService) AddCard(ctx context.Context, req dto.AddCardRequest) (*dto.CardResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.Locker.Lock(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.ownedSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}

	c := s.newCard(ctx, req.TenantID, req.BillingKey, req.CustomerKey, req.CardInfo, req.Alias)
	var set *card.Set
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		set, err = s.addCard(ctx, sub, c, req.MakePrimary)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyCard(ctx, types.WebhookEventCardAdded, c, set.Len())
	return dto.NewCardResponse(c), nil
}

func (s *cardService) RegisterCard(ctx context.Context, req dto.RegisterCardRequest) (*dto.CardResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	issued, err := s.Gateway.IssueBillingKey(ctx, &gateway.IssueBillingKeyRequest{
		AuthKey:     req.AuthKey,
		CustomerKey: req.TenantID,
	})
	if err != nil {
		return nil, err
	}

	return s.AddCard(ctx, dto.AddCardRequest{
		TenantID:    req.TenantID,
		BillingKey:  issued.BillingKey,
		CustomerKey: issued.CustomerKey,
		CardInfo:    issued.CardInfo,
		Alias:       req.Alias,
		MakePrimary: req.MakePrimary,
		Requester:   req.Requester,
	})
}

func (s *cardService) RemoveCard(ctx context.Context, tenantID, cardID string, requester dto.Requester) error {
	release, err := s.Locker.Lock(ctx, tenantID)
	if err != nil {
		return err
	}
	defer release()

	sub, err := s.ownedSubscription(ctx, tenantID, requester)
	if err != nil {
		return err
	}

	cards, err := s.CardRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	set := card.NewSet(cards, s.Config.Billing.MaxCards)
	removed, promoted, err := set.Remove(cardID)
	if err != nil {
		return err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.CardRepo.Delete(ctx, tenantID, removed.ID); err != nil {
			return err
		}
		if promoted != nil {
			s.touch(ctx, promoted)
			if err := s.CardRepo.Update(ctx, promoted); err != nil {
				return err
			}
		}
		if !removed.IsPrimary {
			return nil
		}
		// the cached key must never point at a deleted card
		return s.mirrorPrimary(ctx, sub, set.Primary())
	})
	if err != nil {
		return err
	}

	s.Logger.Infow("removed card",
		"tenant_id", tenantID,
		"card_id", removed.ID,
		"was_primary", removed.IsPrimary,
		"remaining", set.Len(),
	)
	s.notifyCard(ctx, types.WebhookEventCardRemoved, removed, set.Len())
	return nil
}

func (s *cardService) SetPrimary(ctx context.Context, tenantID, cardID string, requester dto.Requester) (*dto.CardResponse, error) {
	release, err := s.Locker.Lock(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.ownedSubscription(ctx, tenantID, requester)
	if err != nil {
		return nil, err
	}

	cards, err := s.CardRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	set := card.NewSet(cards, s.Config.Billing.MaxCards)
	primary, demoted, err := set.SetPrimary(cardID)
	if err != nil {
		return nil, err
	}
	if len(demoted) == 0 {
		return dto.NewCardResponse(primary), nil
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		// demote first so there is never a moment with two primaries
		if err := s.updateCards(ctx, demoted...); err != nil {
			return err
		}
		if err := s.updateCards(ctx, primary); err != nil {
			return err
		}
		return s.mirrorPrimary(ctx, sub, primary)
	})
	if err != nil {
		return nil, err
	}

	s.notifyCard(ctx, types.WebhookEventCardPrimaryChanged, primary, set.Len())
	return dto.NewCardResponse(primary), nil
}

func (s *cardService) UpdateAlias(ctx context.Context, tenantID, cardID string, req dto.UpdateCardAliasRequest, requester dto.Requester) (*dto.CardResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.Locker.Lock(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.ownedSubscription(ctx, tenantID, requester); err != nil {
		return nil, err
	}

	c, err := s.CardRepo.Get(ctx, tenantID, cardID)
	if err != nil {
		return nil, err
	}
	c.Alias = req.Alias
	s.touch(ctx, c)
	if err := s.CardRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return dto.NewCardResponse(c), nil
}

func (s *cardService) ListCards(ctx context.Context, tenantID string, requester dto.Requester) (*dto.ListCardsResponse, error) {
	if _, err := s.ownedSubscription(ctx, tenantID, requester); err != nil {
		return nil, err
	}

	cards, err := s.CardRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &dto.ListCardsResponse{
		Items: lo.Map(cards, func(c *card.Card, _ int) *dto.CardResponse { return dto.NewCardResponse(c) }),
	}, nil
}

// addCard stores c in the tenant's set. Callers hold the tenant lock and an
// open transaction. sub may be nil when the tenant has no subscription yet.
func (s *cardService) addCard(ctx context.Context, sub *subscription.Subscription, c *card.Card, makePrimary bool) (*card.Set, error) {
	cards, err := s.CardRepo.ListByTenant(ctx, c.TenantID)
	if err != nil {
		return nil, err
	}

	set := card.NewSet(cards, s.Config.Billing.MaxCards)
	demoted, err := set.Add(c, makePrimary)
	if err != nil {
		return nil, err
	}

	if err := s.updateCards(ctx, demoted...); err != nil {
		return nil, err
	}
	if err := s.CardRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	if c.IsPrimary && sub != nil {
		if err := s.mirrorPrimary(ctx, sub, c); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// mirrorPrimary copies the primary card onto the subscription, or clears the
// cached key when primary is nil
func (s *cardService) mirrorPrimary(ctx context.Context, sub *subscription.Subscription, primary *card.Card) error {
	if sub == nil {
		return nil
	}
	if primary == nil {
		sub.SetPrimaryCard("", "", types.CardInfo{})
	} else {
		sub.SetPrimaryCard(primary.BillingKey, primary.CustomerKey, primary.CardInfo)
	}
	sub.UpdatedAt = s.now().UTC()
	sub.UpdatedBy = types.GetUserID(ctx)
	return s.SubRepo.Update(ctx, sub)
}

func (s *cardService) updateCards(ctx context.Context, cards ...*card.Card) error {
	for _, c := range cards {
		s.touch(ctx, c)
		if err := s.CardRepo.Update(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// ownedSubscription returns the tenant's subscription after the ownership
// check. A tenant without a subscription yet may still manage cards.
func (s *cardService) ownedSubscription(ctx context.Context, tenantID string, requester dto.Requester) (*subscription.Subscription, error) {
	sub, err := s.SubRepo.Get(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := authorize(sub, requester); err != nil {
		return nil, err
	}
	return sub, nil
}

// newCard builds an unsaved card. An empty customerKey falls back to the
// tenant ID, which is the customer key every issuance request carries.
func (s *cardService) newCard(ctx context.Context, tenantID, billingKey, customerKey string, info types.CardInfo, alias string) *card.Card {
	base := types.GetDefaultBaseModel(ctx)
	base.TenantID = tenantID
	base.CreatedAt = s.now().UTC()
	base.UpdatedAt = base.CreatedAt
	return &card.Card{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CARD),
		BillingKey:  billingKey,
		CustomerKey: lo.CoalesceOrEmpty(customerKey, tenantID),
		CardInfo:    info,
		Alias:       alias,
		BaseModel:   base,
	}
}

func (s *cardService) touch(ctx context.Context, c *card.Card) {
	c.UpdatedAt = s.now().UTC()
	c.UpdatedBy = types.GetUserID(ctx)
}

func (s *cardService) notifyCard(ctx context.Context, eventName string, c *card.Card, count int) {
	s.notifier.Notify(ctx, eventName, c.TenantID, &webhookDto.CardWebhookPayload{
		TenantID:  c.TenantID,
		CardID:    c.ID,
		CardInfo:  c.CardInfo,
		IsPrimary: c.IsPrimary,
		CardCount: count,
	})
}
