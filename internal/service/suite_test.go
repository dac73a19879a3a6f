package service

import (
	"time"

	"github.com/acctportal/billingcore/internal/api/dto"
	"github.com/acctportal/billingcore/internal/domain/card"
	"github.com/acctportal/billingcore/internal/domain/history"
	"github.com/acctportal/billingcore/internal/domain/payment"
	"github.com/acctportal/billingcore/internal/domain/proration"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	"github.com/acctportal/billingcore/internal/testutil"
	"github.com/acctportal/billingcore/internal/types"
)

const (
	testTenantID    = "tenant-acme"
	testOwnerID     = "user-owner"
	seedPaymentKey  = "tpk_seed"
	seedBillingKey  = "bk_seed"
	seedCustomerKey = "cus_seed"
)

// serviceSuite wires every service against the in-memory stores and gateway
type serviceSuite struct {
	testutil.BaseServiceTestSuite

	params       ServiceParams
	notifier     *Notifier
	orchestrator PaymentOrchestrator
	subs         SubscriptionService
	cards        CardService
	history      HistoryService
	calc         *proration.Calculator
}

func (s *serviceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.params = ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		DB:               s.GetDB(),
		SubRepo:          stores.SubscriptionRepo,
		PaymentRepo:      stores.PaymentRepo,
		HistoryRepo:      stores.HistoryRepo,
		CardRepo:         stores.CardRepo,
		Gateway:          s.GetGateway(),
		Locker:           s.GetLocker(),
		WebhookPublisher: s.GetWebhookPublisher(),
		Now:              s.Clock(),
	}
	s.notifier = NewNotifier(s.params)
	s.orchestrator = NewPaymentOrchestrator(s.params, s.notifier)
	s.subs = NewSubscriptionService(s.params, s.notifier, s.orchestrator)
	s.cards = NewCardService(s.params, s.notifier)
	s.history = NewHistoryService(s.params)
	s.calc = proration.NewCalculator(s.GetConfig().Billing.Location())
}

func (s *serviceSuite) owner() dto.Requester {
	return dto.Requester{RequesterUserID: testOwnerID}
}

// seedSubscription stores a paid subscription as if checkout happened at
// start: a primary card, a done charge of amount at the gateway and in the
// ledger, and an open history segment.
func (s *serviceSuite) seedSubscription(plan types.Plan, status types.SubscriptionStatus, amount int64, start, next time.Time) *subscription.Subscription {
	ctx := s.GetContext()
	stores := s.GetStores()
	price, ok := s.GetConfig().Billing.PlanPrice(plan)
	s.Require().True(ok)

	cardInfo := types.CardInfo{Number: "4330****1234", Company: "Hyundai", CardType: "credit"}
	base := types.BaseModel{TenantID: testTenantID, CreatedAt: start.UTC(), UpdatedAt: start.UTC()}

	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OwnerUserID:        testOwnerID,
		Email:              "owner@acme.test",
		DisplayName:        "Acme",
		Plan:               plan,
		Status:             status,
		Amount:             amount,
		BaseAmount:         price,
		AmountPeriodDays:   s.calc.Days(start, next),
		Currency:           "KRW",
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   next,
		NextBillingDate:    &next,
		BillingKey:         seedBillingKey,
		CustomerKey:        seedCustomerKey,
		CardInfo:           cardInfo,
		BaseModel:          base,
	}
	if status == types.SubscriptionStatusPendingCancel || status.IsTerminal() {
		sub.PreviousNextBillingDate = &next
		sub.NextBillingDate = nil
	}
	s.Require().NoError(stores.SubscriptionRepo.Create(ctx, sub))

	s.Require().NoError(stores.CardRepo.Create(ctx, &card.Card{
		ID:          "card_seed",
		BillingKey:  seedBillingKey,
		CustomerKey: seedCustomerKey,
		CardInfo:    cardInfo,
		IsPrimary:   true,
		BaseModel:   base,
	}))

	s.Require().NoError(stores.PaymentRepo.Create(ctx, &payment.Payment{
		ID:              "pay_seed",
		OrderID:         "order_seed",
		PaymentKey:      seedPaymentKey,
		Amount:          amount,
		Currency:        "KRW",
		TransactionType: types.TransactionTypeCharge,
		Type:            types.PaymentTypeSubscription,
		Status:          types.PaymentStatusDone,
		Plan:            plan,
		Method:          "card",
		CardInfo:        cardInfo,
		BaseModel:       base,
	}))
	s.GetGateway().SeedPayment(seedPaymentKey, amount)

	s.Require().NoError(stores.HistoryRepo.Create(ctx, &history.Record{
		ID:          "shist_seed",
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Plan:        plan,
		Status:      status,
		Amount:      amount,
		PeriodStart: start.UTC(),
		ChangeType:  types.ChangeTypeNew,
		ChangedAt:   start.UTC(),
	}))

	stored, err := stores.SubscriptionRepo.Get(ctx, testTenantID)
	s.Require().NoError(err)
	return stored
}

func (s *serviceSuite) reload() *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), testTenantID)
	s.Require().NoError(err)
	return sub
}

func (s *serviceSuite) payments() []*payment.Payment {
	rows, err := s.GetStores().PaymentRepo.List(s.GetContext(), testTenantID, types.PageFilter{Limit: 100})
	s.Require().NoError(err)
	return rows
}

func (s *serviceSuite) seedCharge() *payment.Payment {
	p, err := s.GetStores().PaymentRepo.Get(s.GetContext(), testTenantID, "pay_seed")
	s.Require().NoError(err)
	return p
}

func (s *serviceSuite) segments() []*history.Record {
	records, err := s.GetStores().HistoryRepo.ListByTenant(s.GetContext(), testTenantID, types.PageFilter{Limit: 100})
	s.Require().NoError(err)
	return records
}

// assertHistoryContinuity checks the ledger has one open segment and no gaps
func (s *serviceSuite) assertHistoryContinuity() {
	records := s.segments()
	s.Require().NotEmpty(records)

	open := 0
	for _, r := range records {
		if r.IsOpen() {
			open++
		}
	}
	s.Equal(1, open, "exactly one open segment")
	s.True(records[0].IsOpen(), "newest segment is the open one")

	for i := 0; i+1 < len(records); i++ {
		newer, older := records[i], records[i+1]
		s.Require().NotNil(older.PeriodEnd)
		s.True(older.PeriodEnd.Equal(newer.PeriodStart), "segment %s ends where %s starts", older.ID, newer.ID)
	}
}

func (s *serviceSuite) webhookEvents(name string) []*types.WebhookEvent {
	s.notifier.Wait()
	return s.GetWebhookPublisher().Events(name)
}
