package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acctportal/billingcore/internal/api/dto"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/testutil"
	"github.com/acctportal/billingcore/internal/types"
	webhookDto "github.com/acctportal/billingcore/internal/webhook/dto"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type SubscriptionLifecycleSuite struct {
	serviceSuite
}

func TestSubscriptionLifecycle(t *testing.T) {
	suite.Run(t, new(SubscriptionLifecycleSuite))
}

func (s *SubscriptionLifecycleSuite) admin() dto.Requester {
	return dto.Requester{RequesterUserID: "user-admin", IsAdmin: true}
}

func (s *SubscriptionLifecycleSuite) TestCreateTrial() {
	res, err := s.subs.CreateTrial(s.GetContext(), dto.CreateTrialRequest{
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Email:       "owner@acme.test",
	})
	s.Require().NoError(err)
	s.True(res.Success)

	sub := s.reload()
	s.Equal(types.PlanTrial, sub.Plan)
	s.Equal(types.SubscriptionStatusTrial, sub.Status)
	s.True(sub.CurrentPeriodStart.Equal(s.Day(2024, 3, 1)))
	s.True(sub.CurrentPeriodEnd.Equal(s.Day(2024, 3, 15)))
	s.Nil(sub.NextBillingDate)
	s.Equal(1, sub.Version)

	segs := s.segments()
	s.Require().Len(segs, 1)
	s.Equal(types.ChangeTypeNew, segs[0].ChangeType)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionCreated), 1)
	s.Zero(s.GetGateway().TotalCalls())

	_, err = s.subs.CreateTrial(s.GetContext(), dto.CreateTrialRequest{
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Email:       "owner@acme.test",
	})
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionLifecycleSuite) TestCheckout() {
	req := dto.CheckoutRequest{
		TenantID:       testTenantID,
		OwnerUserID:    testOwnerID,
		Email:          "owner@acme.test",
		DisplayName:    "Acme",
		Plan:           types.PlanBusiness,
		AuthKey:        "7777",
		IdempotencyKey: "co-1",
	}
	res, err := s.subs.Checkout(s.GetContext(), req)
	s.Require().NoError(err)
	s.Equal(int64(99000), res.ChargedAmount)
	s.Zero(res.RefundedAmount)

	sub := s.reload()
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Equal(types.PlanBusiness, sub.Plan)
	s.Equal(int64(99000), sub.Amount)
	s.Equal(int64(99000), sub.BaseAmount)
	s.Equal(31, sub.AmountPeriodDays)
	s.Equal("bk_7777", sub.BillingKey)
	s.Equal("5365****7777", sub.CardInfo.Number)
	s.True(sub.CurrentPeriodEnd.Equal(s.Day(2024, 4, 1)))
	s.Require().NotNil(sub.NextBillingDate)
	s.True(sub.NextBillingDate.Equal(s.Day(2024, 4, 1)))

	cards, err := s.GetStores().CardRepo.ListByTenant(s.GetContext(), testTenantID)
	s.Require().NoError(err)
	s.Require().Len(cards, 1)
	s.True(cards[0].IsPrimary)

	rows := s.payments()
	s.Require().Len(rows, 1)
	s.Equal(types.PaymentTypeSubscription, rows[0].Type)
	s.Equal("co-1", rows[0].IdempotencyKey)

	gw := s.GetGateway()
	s.Require().Len(gw.Charges, 1)
	s.Equal("cus_"+testTenantID, gw.Charges[0].CustomerKey)
	s.Equal("Business plan subscription", gw.Charges[0].OrderName)
	s.Equal("cus_"+testTenantID, sub.CustomerKey)
	s.Equal("cus_"+testTenantID, cards[0].CustomerKey)
	s.Len(s.segments(), 1)

	replayed, err := s.subs.Checkout(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(replayed.Replayed)
	s.Equal(res.Charge.OrderID, replayed.Charge.OrderID)
	s.Equal(1, gw.Calls("issue_billing_key"))
	s.Equal(1, gw.Calls("charge"))
}

func (s *SubscriptionLifecycleSuite) TestCheckoutRejectsExistingSubscription() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))

	_, err := s.subs.Checkout(s.GetContext(), dto.CheckoutRequest{
		TenantID:       testTenantID,
		OwnerUserID:    testOwnerID,
		Email:          "owner@acme.test",
		Plan:           types.PlanBusiness,
		AuthKey:        "7777",
		IdempotencyKey: "co-2",
	})
	s.True(ierr.IsAlreadyExists(err))
	s.Zero(s.GetGateway().TotalCalls())
}

// a full card registry is refused before the gateway issues a billing key
func (s *SubscriptionLifecycleSuite) TestCheckoutCardLimitSkipsIssuance() {
	for _, suffix := range []string{"0001", "0002", "0003", "0004", "0005"} {
		_, err := s.cards.AddCard(s.GetContext(), dto.AddCardRequest{
			TenantID:   testTenantID,
			BillingKey: "bk_" + suffix,
			CardInfo:   types.CardInfo{Number: "9410****" + suffix, Company: "Samsung"},
			Requester:  s.owner(),
		})
		s.Require().NoError(err)
	}

	_, err := s.subs.Checkout(s.GetContext(), dto.CheckoutRequest{
		TenantID:       testTenantID,
		OwnerUserID:    testOwnerID,
		Email:          "owner@acme.test",
		Plan:           types.PlanBasic,
		AuthKey:        "7777",
		IdempotencyKey: "co-3",
	})
	s.True(ierr.IsValidation(err))
	s.Zero(s.GetGateway().Calls("issue_billing_key"))
	s.Zero(s.GetGateway().TotalCalls())
	s.Equal(5, s.GetStores().CardRepo.Len())
}

func (s *SubscriptionLifecycleSuite) TestCheckoutChargeFailureLeavesNothing() {
	s.GetGateway().ChargeErr = ierr.NewGatewayError(&ierr.GatewayError{Op: "charge", Code: "REJECT_CARD_COMPANY", StatusCode: 400})

	_, err := s.subs.Checkout(s.GetContext(), dto.CheckoutRequest{
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Email:       "owner@acme.test",
		Plan:        types.PlanBasic,
		AuthKey:     "7777",
	})
	s.True(ierr.IsGateway(err))

	_, err = s.GetStores().SubscriptionRepo.Get(s.GetContext(), testTenantID)
	s.True(ierr.IsNotFound(err))
	s.Zero(s.GetStores().CardRepo.Len())
	s.Empty(s.payments())
}

func (s *SubscriptionLifecycleSuite) TestConvertTrialImmediate() {
	s.startTrialWithCard()

	res, err := s.subs.ConvertTrial(s.GetContext(), dto.ConvertTrialRequest{
		TenantID:       testTenantID,
		Plan:           types.PlanBasic,
		Mode:           types.PlanChangeModeImmediate,
		IdempotencyKey: "conv-1",
		Requester:      s.owner(),
	})
	s.Require().NoError(err)
	s.Equal(int64(39000), res.ChargedAmount)

	sub := s.reload()
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Equal(types.PlanBasic, sub.Plan)
	s.Equal(types.PlanTrial, sub.PreviousPlan)
	s.Equal(31, sub.AmountPeriodDays)
	s.True(sub.CurrentPeriodStart.Equal(s.Day(2024, 3, 1)))
	s.True(sub.CurrentPeriodEnd.Equal(s.Day(2024, 4, 1)))

	gw := s.GetGateway()
	s.Require().Len(gw.Charges, 1)
	s.Equal("bk_trial", gw.Charges[0].BillingKey)
	s.Zero(gw.Calls("get_payment"))
	s.Zero(gw.Calls("refund"))

	rows := s.payments()
	s.Require().Len(rows, 1)
	s.Equal(types.PaymentTypeTrialConversion, rows[0].Type)

	segs := s.segments()
	s.Require().Len(segs, 2)
	s.Equal(types.ChangeTypeUpgrade, segs[0].ChangeType)
	s.assertHistoryContinuity()
}

func (s *SubscriptionLifecycleSuite) TestConvertTrialScheduledRequiresCard() {
	_, err := s.subs.CreateTrial(s.GetContext(), dto.CreateTrialRequest{
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Email:       "owner@acme.test",
	})
	s.Require().NoError(err)

	_, err = s.subs.ConvertTrial(s.GetContext(), dto.ConvertTrialRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBasic,
		Mode:      types.PlanChangeModeScheduled,
		Requester: s.owner(),
	})
	s.True(ierr.IsValidation(err))
	s.Empty(s.reload().PendingPlan)
}

func (s *SubscriptionLifecycleSuite) TestScheduledTrialConversionRunsAtTrialEnd() {
	s.startTrialWithCard()

	res, err := s.subs.ConvertTrial(s.GetContext(), dto.ConvertTrialRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBusiness,
		Mode:      types.PlanChangeModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.Zero(res.ChargedAmount)

	sub := s.reload()
	s.Equal(types.SubscriptionStatusTrial, sub.Status)
	s.Equal(types.PlanBusiness, sub.PendingPlan)
	s.Equal(int64(99000), sub.PendingAmount)
	s.Require().NotNil(sub.NextBillingDate)
	s.True(sub.NextBillingDate.Equal(s.Day(2024, 3, 15)))
	s.Len(s.segments(), 1)
	s.Zero(s.GetGateway().TotalCalls())

	s.SetNow(s.Day(2024, 3, 14).Add(12 * time.Hour))
	res, err = s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.True(res.Noop)

	s.SetNow(s.Day(2024, 3, 15).Add(30 * time.Minute))
	res, err = s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID, Now: s.GetNow()})
	s.Require().NoError(err)
	s.Equal(int64(99000), res.ChargedAmount)

	sub = s.reload()
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Equal(types.PlanBusiness, sub.Plan)
	s.Empty(sub.PendingPlan)
	s.True(sub.CurrentPeriodStart.Equal(s.Day(2024, 3, 15)))
	s.True(sub.CurrentPeriodEnd.Equal(s.Day(2024, 4, 15)))

	rows := s.payments()
	s.Require().Len(rows, 1)
	s.Equal(types.PaymentTypeTrialConversion, rows[0].Type)
	s.NotEmpty(rows[0].IdempotencyKey)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionActivated), 1)

	res, err = s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.True(res.Noop)
	s.Equal(1, s.GetGateway().Calls("charge"))
}

func (s *SubscriptionLifecycleSuite) TestTrialExpiresWithoutConversion() {
	_, err := s.subs.CreateTrial(s.GetContext(), dto.CreateTrialRequest{
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Email:       "owner@acme.test",
	})
	s.Require().NoError(err)

	s.SetNow(s.Day(2024, 3, 16))
	res, err := s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusExpired, res.Subscription.Status)

	segs := s.segments()
	s.Require().Len(segs, 2)
	s.Equal(types.ChangeTypeExpire, segs[0].ChangeType)
	s.assertHistoryContinuity()
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionExpired), 1)

	// nothing to charge without a card
	_, err = s.subs.Resubscribe(s.GetContext(), dto.ResubscribeRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBasic,
		Requester: s.owner(),
	})
	s.True(ierr.IsValidation(err))
	s.Zero(s.GetGateway().TotalCalls())
}

func (s *SubscriptionLifecycleSuite) TestCancelTrial() {
	_, err := s.subs.CreateTrial(s.GetContext(), dto.CreateTrialRequest{
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Email:       "owner@acme.test",
	})
	s.Require().NoError(err)
	s.Advance(time.Hour)

	res, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:  testTenantID,
		Mode:      types.CancelModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCanceled, res.Subscription.Status)
	s.Zero(s.GetGateway().TotalCalls())
	s.Equal(types.ChangeTypeCancel, s.segments()[0].ChangeType)
}

// upgrade mid cycle: refund the unused basic days, charge business for the rest
func (s *SubscriptionLifecycleSuite) TestChangePlanImmediateUpgrade() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 10).Add(15 * time.Hour))

	req := dto.ChangePlanRequest{
		TenantID:       testTenantID,
		Plan:           types.PlanBusiness,
		Mode:           types.PlanChangeModeImmediate,
		IdempotencyKey: "chg-1",
		Requester:      s.owner(),
	}
	res, err := s.subs.ChangePlan(s.GetContext(), req)
	s.Require().NoError(err)
	s.Require().NotNil(res.Proration)
	s.Equal(31, res.Proration.TotalDaysInPeriod)
	s.Equal(10, res.Proration.UsedDays)
	s.Equal(21, res.Proration.DaysLeft)
	s.Equal(22, res.Proration.NewPlanDays)
	s.Equal(int64(26419), res.Proration.CreditAmount)
	s.Equal(int64(70258), res.Proration.ProratedNewAmount)
	s.Equal(int64(43839), res.Proration.Net)
	s.Equal(int64(26419), res.RefundedAmount)
	s.Equal(int64(70258), res.ChargedAmount)

	sub := s.reload()
	s.Equal(types.PlanBusiness, sub.Plan)
	s.Equal(types.PlanBasic, sub.PreviousPlan)
	s.Equal(int64(39000), sub.PreviousAmount)
	s.Equal(int64(70258), sub.Amount)
	s.Equal(int64(99000), sub.BaseAmount)
	s.Equal(22, sub.AmountPeriodDays)
	s.True(sub.IsProrated())
	s.True(sub.CurrentPeriodStart.Equal(s.Day(2024, 3, 10)))
	s.Require().NotNil(sub.NextBillingDate)
	s.True(sub.NextBillingDate.Equal(s.Day(2024, 4, 1)))

	rows := s.payments()
	s.Require().Len(rows, 3)
	charge, refund := rows[0], rows[1]
	s.Equal(types.TransactionTypeCharge, charge.TransactionType)
	s.Equal(types.PaymentTypeUpgrade, charge.Type)
	s.Equal(int64(70258), charge.Amount)
	s.Equal(types.PaymentStatusDone, charge.Status)
	s.Equal(types.TransactionTypeRefund, refund.TransactionType)
	s.Equal(int64(-26419), refund.Amount)
	s.Equal("pay_seed", refund.OriginalPaymentID)
	s.Equal(charge.OrderID, refund.OrderID)
	s.Equal("chg-1", refund.IdempotencyKey)
	s.Equal(int64(26419), s.seedCharge().RefundedAmount)

	gw := s.GetGateway()
	s.Require().Len(gw.Refunds, 1)
	s.Equal(seedPaymentKey, gw.Refunds[0].PaymentKey)
	s.Equal(int64(26419), gw.Refunds[0].Amount)
	s.Equal(charge.OrderID+"-refund", gw.Refunds[0].IdempotencyKey)
	s.Require().Len(gw.Charges, 1)
	s.Equal(int64(70258), gw.Charges[0].Amount)
	s.Equal(seedBillingKey, gw.Charges[0].BillingKey)
	s.Equal(seedCustomerKey, gw.Charges[0].CustomerKey)

	segs := s.segments()
	s.Require().Len(segs, 2)
	s.Equal(types.ChangeTypeUpgrade, segs[0].ChangeType)
	s.Equal(types.PlanBusiness, segs[0].Plan)
	s.Equal(int64(70258), segs[0].Amount)
	s.assertHistoryContinuity()

	events := s.webhookEvents(types.WebhookEventSubscriptionPlanChanged)
	s.Require().Len(events, 1)
	var payload webhookDto.SubscriptionWebhookPayload
	s.Require().NoError(testutil.DecodePayload(events[0], &payload))
	s.Equal(int64(70258), payload.ChargedAmount)
	s.Equal(int64(26419), payload.RefundedAmount)
	s.Equal(types.PlanBasic, payload.PreviousPlan)

	s.Advance(time.Minute)
	replayed, err := s.subs.ChangePlan(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(replayed.Replayed)
	s.Equal(int64(70258), replayed.ChargedAmount)
	s.Equal(int64(26419), replayed.RefundedAmount)
	s.Equal(1, gw.Calls("charge"))
	s.Equal(1, gw.Calls("refund"))
	s.Len(s.payments(), 3)
}

func (s *SubscriptionLifecycleSuite) TestChangePlanTwiceUsesFullCycleBasis() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 10).Add(15 * time.Hour))
	_, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:       testTenantID,
		Plan:           types.PlanBusiness,
		Mode:           types.PlanChangeModeImmediate,
		IdempotencyKey: "chg-1",
		Requester:      s.owner(),
	})
	s.Require().NoError(err)

	s.SetNow(s.Day(2024, 3, 20).Add(10 * time.Hour))
	res, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:       testTenantID,
		Plan:           types.PlanEnterprise,
		Mode:           types.PlanChangeModeImmediate,
		IdempotencyKey: "chg-2",
		Requester:      s.owner(),
	})
	s.Require().NoError(err)
	s.Equal(22, res.Proration.TotalDaysInPeriod)
	s.Equal(11, res.Proration.DaysLeft)
	s.Equal(int64(35129), res.Proration.CreditAmount)
	s.Equal(int64(115742), res.Proration.ProratedNewAmount)
	s.Equal(int64(35129), res.RefundedAmount)

	sub := s.reload()
	s.Equal(types.PlanEnterprise, sub.Plan)
	s.Equal(types.PlanBusiness, sub.PreviousPlan)
	s.Equal(int64(115742), sub.Amount)
	s.Equal(12, sub.AmountPeriodDays)

	// the second refund comes out of the prorated business charge
	gw := s.GetGateway()
	s.Require().Len(gw.Refunds, 2)
	s.Equal("tpk_0001", gw.Refunds[1].PaymentKey)
	s.Equal(int64(26419), s.seedCharge().RefundedAmount)
	s.Len(s.segments(), 3)
	s.assertHistoryContinuity()
}

func (s *SubscriptionLifecycleSuite) TestChangePlanImmediateDowngrade() {
	s.seedSubscription(types.PlanBusiness, types.SubscriptionStatusActive, 99000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 10).Add(15 * time.Hour))

	res, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBasic,
		Mode:      types.PlanChangeModeImmediate,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.Equal(int64(67065), res.Proration.CreditAmount)
	s.Equal(int64(27677), res.Proration.ProratedNewAmount)
	s.Equal(int64(-39388), res.Proration.Net)
	s.Equal(int64(67065), res.RefundedAmount)
	s.Equal(int64(27677), res.ChargedAmount)

	rows := s.payments()
	s.Require().Len(rows, 3)
	s.Equal(types.PaymentTypeDowngrade, rows[0].Type)
	s.Equal(types.ChangeTypeDowngrade, s.segments()[0].ChangeType)
}

func (s *SubscriptionLifecycleSuite) TestChangePlanToSamePlanIsNoop() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))

	res, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBasic,
		Mode:      types.PlanChangeModeImmediate,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.True(res.Noop)
	s.Zero(s.GetGateway().TotalCalls())
	s.Len(s.segments(), 1)
}

func (s *SubscriptionLifecycleSuite) TestScheduledPlanChangeAndCancelIt() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 10))

	_, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanEnterprise,
		Mode:      types.PlanChangeModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)

	sub := s.reload()
	s.Equal(types.PlanBasic, sub.Plan)
	s.Equal(types.PlanEnterprise, sub.PendingPlan)
	s.Equal(int64(299000), sub.PendingAmount)
	s.Zero(s.GetGateway().TotalCalls())
	s.Len(s.segments(), 1)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionChangeQueued), 1)

	res, err := s.subs.CancelScheduledChange(s.GetContext(), dto.CancelScheduledChangeRequest{
		TenantID:  testTenantID,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.False(res.Noop)
	s.Empty(s.reload().PendingPlan)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionChangeDropped), 1)

	res, err = s.subs.CancelScheduledChange(s.GetContext(), dto.CancelScheduledChangeRequest{
		TenantID:  testTenantID,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.True(res.Noop)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionChangeDropped), 1)
}

func (s *SubscriptionLifecycleSuite) TestPreviewPlanChangeMovesNoMoney() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 10).Add(15 * time.Hour))

	preview, err := s.subs.PreviewPlanChange(s.GetContext(), testTenantID, types.PlanBusiness, s.admin())
	s.Require().NoError(err)
	s.Equal(types.ChangeTypeUpgrade, preview.ChangeType)
	s.Equal(int64(26419), preview.Proration.CreditAmount)
	s.Equal(int64(70258), preview.Proration.ProratedNewAmount)
	s.Zero(s.GetGateway().TotalCalls())
	s.Len(s.payments(), 1)
}

func (s *SubscriptionLifecycleSuite) TestChangePlanRequiresOwner() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))

	_, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBusiness,
		Mode:      types.PlanChangeModeImmediate,
		Requester: dto.Requester{RequesterUserID: "user-intruder"},
	})
	s.True(ierr.IsPermissionDenied(err))
	s.Zero(s.GetGateway().TotalCalls())

	_, err = s.subs.GetSubscription(s.GetContext(), dto.GetSubscriptionRequest{
		TenantID:  testTenantID,
		Requester: dto.Requester{RequesterUserID: "user-intruder"},
	})
	s.True(ierr.IsPermissionDenied(err))

	resp, err := s.subs.GetSubscription(s.GetContext(), dto.GetSubscriptionRequest{
		TenantID:  testTenantID,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.True(resp.HasBillingKey)
}

func (s *SubscriptionLifecycleSuite) TestChangePlanRefusedWhenCanceled() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusCanceled, 39000, s.Day(2024, 2, 1), s.Day(2024, 3, 1))

	_, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBusiness,
		Mode:      types.PlanChangeModeImmediate,
		Requester: s.owner(),
	})
	s.True(ierr.IsConflict(err))
	s.Zero(s.GetGateway().TotalCalls())
}

func (s *SubscriptionLifecycleSuite) TestCancelImmediateRefundsUnusedDays() {
	s.seedSubscription(types.PlanBusiness, types.SubscriptionStatusActive, 99000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 6).Add(10 * time.Hour))

	res, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:       testTenantID,
		Mode:           types.CancelModeImmediate,
		Reason:         "switching vendors",
		IdempotencyKey: "cancel-1",
		Requester:      s.owner(),
	})
	s.Require().NoError(err)
	s.Equal(int64(79839), res.RefundedAmount)
	s.Zero(res.ChargedAmount)

	sub := s.reload()
	s.Equal(types.SubscriptionStatusCanceled, sub.Status)
	s.Equal(types.CancelModeImmediate, sub.CancelMode)
	s.Equal("switching vendors", sub.CancelReason)
	s.Nil(sub.NextBillingDate)
	s.True(sub.CurrentPeriodEnd.Equal(s.GetNow()))
	s.Require().NotNil(sub.CanceledAt)

	rows := s.payments()
	s.Require().Len(rows, 2)
	s.Equal(types.PaymentTypeCancelRefund, rows[0].Type)
	s.Equal(int64(-79839), rows[0].Amount)
	s.Equal(int64(79839), s.seedCharge().RefundedAmount)
	s.Zero(s.GetGateway().Calls("charge"))

	segs := s.segments()
	s.Require().Len(segs, 2)
	s.Equal(types.ChangeTypeCancel, segs[0].ChangeType)
	s.Equal(types.SubscriptionStatusCanceled, segs[0].Status)
	s.Equal("switching vendors", segs[0].Note)
	s.assertHistoryContinuity()
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionCanceled), 1)

	calls := s.GetGateway().TotalCalls()
	again, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:  testTenantID,
		Mode:      types.CancelModeImmediate,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.True(again.Noop)
	s.Equal(calls, s.GetGateway().TotalCalls())

	replayed, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:       testTenantID,
		Mode:           types.CancelModeImmediate,
		IdempotencyKey: "cancel-1",
		Requester:      s.owner(),
	})
	s.Require().NoError(err)
	s.True(replayed.Replayed)
	s.Equal(int64(79839), replayed.RefundedAmount)
	s.Equal(calls, s.GetGateway().TotalCalls())
}

func (s *SubscriptionLifecycleSuite) TestScheduledCancelThenReactivate() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 15))

	res, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:  testTenantID,
		Mode:      types.CancelModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusPendingCancel, res.Subscription.Status)

	sub := s.reload()
	s.Nil(sub.NextBillingDate)
	s.Require().NotNil(sub.PreviousNextBillingDate)
	s.True(sub.PreviousNextBillingDate.Equal(s.Day(2024, 4, 1)))
	s.Zero(s.GetGateway().TotalCalls())

	s.Advance(time.Hour)
	again, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:  testTenantID,
		Mode:      types.CancelModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.True(again.Noop)

	s.Advance(24 * time.Hour)
	res, err = s.subs.Reactivate(s.GetContext(), dto.ReactivateRequest{TenantID: testTenantID, Requester: s.owner()})
	s.Require().NoError(err)
	s.False(res.Noop)

	sub = s.reload()
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Require().NotNil(sub.NextBillingDate)
	s.True(sub.NextBillingDate.Equal(s.Day(2024, 4, 1)))
	s.Nil(sub.PreviousNextBillingDate)
	s.Empty(sub.CancelMode)
	s.Nil(sub.CanceledAt)

	segs := s.segments()
	s.Require().Len(segs, 3)
	s.Equal(types.ChangeTypeReactivate, segs[0].ChangeType)
	s.assertHistoryContinuity()

	res, err = s.subs.Reactivate(s.GetContext(), dto.ReactivateRequest{TenantID: testTenantID, Requester: s.owner()})
	s.Require().NoError(err)
	s.True(res.Noop)
}

func (s *SubscriptionLifecycleSuite) TestReactivateRefusedWhenCanceled() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusCanceled, 39000, s.Day(2024, 2, 1), s.Day(2024, 3, 1))

	_, err := s.subs.Reactivate(s.GetContext(), dto.ReactivateRequest{TenantID: testTenantID, Requester: s.owner()})
	s.True(ierr.IsConflict(err))
}

// an immediate cancel after a scheduled one refunds up to the old billing date
func (s *SubscriptionLifecycleSuite) TestImmediateCancelFromPendingCancel() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 6).Add(10 * time.Hour))

	_, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:  testTenantID,
		Mode:      types.CancelModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)

	s.Advance(time.Hour)
	res, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:       testTenantID,
		Mode:           types.CancelModeImmediate,
		IdempotencyKey: "cancel-2",
		Requester:      s.owner(),
	})
	s.Require().NoError(err)
	s.Equal(int64(31452), res.RefundedAmount)

	sub := s.reload()
	s.Equal(types.SubscriptionStatusCanceled, sub.Status)
	s.Nil(sub.PreviousNextBillingDate)
	s.Len(s.segments(), 3)
	s.assertHistoryContinuity()
}

func (s *SubscriptionLifecycleSuite) TestConcurrentImmediateCancelsRefundOnce() {
	s.seedSubscription(types.PlanBusiness, types.SubscriptionStatusActive, 99000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 6).Add(10 * time.Hour))

	var (
		wg      sync.WaitGroup
		results = make([]*dto.LifecycleResult, 2)
		errs    = make([]error, 2)
	)
	for i := range 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.subs.Cancel(s.GetContext(), dto.CancelRequest{
				TenantID:       testTenantID,
				Mode:           types.CancelModeImmediate,
				IdempotencyKey: []string{"cancel-a", "cancel-b"}[i],
				Requester:      s.owner(),
			})
		}(i)
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	refunded := lo.Filter(results, func(r *dto.LifecycleResult, _ int) bool { return r.RefundedAmount > 0 })
	noops := lo.Filter(results, func(r *dto.LifecycleResult, _ int) bool { return r.Noop })
	s.Require().Len(refunded, 1)
	s.Len(noops, 1)
	s.Equal(int64(79839), refunded[0].RefundedAmount)
	s.Equal(1, s.GetGateway().Calls("refund"))
	s.Equal(int64(79839), s.seedCharge().RefundedAmount)
}

// a retried resubscribe finds the subscription active and must replay, not no-op
func (s *SubscriptionLifecycleSuite) TestResubscribeReplaysDuplicateRequest() {
	s.seedSubscription(types.PlanBusiness, types.SubscriptionStatusCanceled, 99000, s.Day(2024, 2, 1), s.Day(2024, 3, 1))

	req := dto.ResubscribeRequest{
		TenantID:       testTenantID,
		Plan:           types.PlanBusiness,
		IdempotencyKey: "resub-1",
		Requester:      s.owner(),
	}
	first, err := s.subs.Resubscribe(s.GetContext(), req)
	s.Require().NoError(err)
	s.False(first.Replayed)
	s.Equal(int64(99000), first.ChargedAmount)

	sub := s.reload()
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.True(sub.CurrentPeriodStart.Equal(s.Day(2024, 3, 1)))
	s.True(sub.CurrentPeriodEnd.Equal(s.Day(2024, 4, 1)))
	s.Equal(types.PaymentTypeResubscribe, first.Charge.Type)

	segs := s.segments()
	s.Require().Len(segs, 2)
	s.Equal(types.ChangeTypeNew, segs[0].ChangeType)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionResubscribed), 1)

	s.Advance(time.Minute)
	calls := s.GetGateway().TotalCalls()
	second, err := s.subs.Resubscribe(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Charge.OrderID, second.Charge.OrderID)
	s.Equal(first.Charge.PaymentKey, second.Charge.PaymentKey)
	s.Equal(int64(99000), second.ChargedAmount)
	s.Equal(calls, s.GetGateway().TotalCalls())
	s.Equal(1, s.GetGateway().Calls("charge"))
	s.Len(s.segments(), 2)
}

func (s *SubscriptionLifecycleSuite) TestResubscribeWhileRunning() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))

	res, err := s.subs.Resubscribe(s.GetContext(), dto.ResubscribeRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBasic,
		Requester: s.owner(),
	})
	s.Require().NoError(err)
	s.True(res.Noop)

	_, err = s.subs.Resubscribe(s.GetContext(), dto.ResubscribeRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanEnterprise,
		Requester: s.owner(),
	})
	s.True(ierr.IsConflict(err))
	s.Zero(s.GetGateway().TotalCalls())
}

func (s *SubscriptionLifecycleSuite) TestRenewal() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))

	s.SetNow(s.Day(2024, 3, 20))
	res, err := s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.True(res.Noop)

	s.SetNow(s.Day(2024, 4, 1).Add(3 * time.Hour))
	res, err = s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.Equal(int64(39000), res.ChargedAmount)

	sub := s.reload()
	s.Equal(types.PlanBasic, sub.Plan)
	s.True(sub.CurrentPeriodStart.Equal(s.Day(2024, 4, 1)))
	s.True(sub.CurrentPeriodEnd.Equal(s.Day(2024, 5, 1)))
	s.Equal(30, sub.AmountPeriodDays)
	s.Require().NotNil(sub.NextBillingDate)
	s.True(sub.NextBillingDate.Equal(s.Day(2024, 5, 1)))

	rows := s.payments()
	s.Require().Len(rows, 2)
	s.Equal(types.PaymentTypeRenewal, rows[0].Type)
	s.NotEmpty(rows[0].IdempotencyKey)

	segs := s.segments()
	s.Require().Len(segs, 2)
	s.Equal(types.ChangeTypeRenew, segs[0].ChangeType)
	s.assertHistoryContinuity()
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionRenewed), 1)

	s.Advance(time.Hour)
	res, err = s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.True(res.Noop)
	s.Equal(1, s.GetGateway().Calls("charge"))
}

func (s *SubscriptionLifecycleSuite) TestRenewalAppliesScheduledPlanChange() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 10))
	_, err := s.subs.ChangePlan(s.GetContext(), dto.ChangePlanRequest{
		TenantID:  testTenantID,
		Plan:      types.PlanBusiness,
		Mode:      types.PlanChangeModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)

	s.SetNow(s.Day(2024, 4, 1).Add(3 * time.Hour))
	res, err := s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.Equal(int64(99000), res.ChargedAmount)

	sub := s.reload()
	s.Equal(types.PlanBusiness, sub.Plan)
	s.Equal(types.PlanBasic, sub.PreviousPlan)
	s.Equal(int64(99000), sub.Amount)
	s.Empty(sub.PendingPlan)
	s.Equal(types.ChangeTypeUpgrade, s.segments()[0].ChangeType)
	s.Zero(s.GetGateway().Calls("refund"))
}

func (s *SubscriptionLifecycleSuite) TestRenewalFailureLeavesSubscription() {
	seeded := s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.GetGateway().ChargeErr = ierr.NewGatewayError(&ierr.GatewayError{Op: "charge", Code: "INVALID_CARD_EXPIRATION", StatusCode: 400})

	s.SetNow(s.Day(2024, 4, 1).Add(3 * time.Hour))
	_, err := s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.True(ierr.IsGateway(err))

	sub := s.reload()
	s.Equal(seeded.Version, sub.Version)
	s.Require().NotNil(sub.NextBillingDate)
	s.True(sub.NextBillingDate.Equal(s.Day(2024, 4, 1)))
	s.Len(s.payments(), 1)
	s.Len(s.segments(), 1)

	s.GetGateway().ChargeErr = nil
	s.Advance(time.Hour)
	res, err := s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.Equal(int64(39000), res.ChargedAmount)
}

func (s *SubscriptionLifecycleSuite) TestPendingCancelExpiresAtPeriodEnd() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 15))
	_, err := s.subs.Cancel(s.GetContext(), dto.CancelRequest{
		TenantID:  testTenantID,
		Mode:      types.CancelModeScheduled,
		Requester: s.owner(),
	})
	s.Require().NoError(err)

	s.SetNow(s.Day(2024, 4, 1).Add(time.Hour))
	res, err := s.subs.ProcessPeriodEnd(s.GetContext(), dto.ProcessPeriodEndRequest{TenantID: testTenantID})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusExpired, res.Subscription.Status)

	sub := s.reload()
	s.Nil(sub.NextBillingDate)
	s.Nil(sub.PreviousNextBillingDate)
	s.Zero(s.GetGateway().TotalCalls())
	s.Equal(types.ChangeTypeExpire, s.segments()[0].ChangeType)
	s.assertHistoryContinuity()
}

func (s *SubscriptionLifecycleSuite) TestAdminEditRequiresAdmin() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))

	_, err := s.subs.AdminEdit(s.GetContext(), dto.AdminEditRequest{
		TenantID:  testTenantID,
		Plan:      lo.ToPtr(types.PlanBusiness),
		Requester: s.owner(),
	})
	s.True(ierr.IsPermissionDenied(err))
	s.Equal(types.PlanBasic, s.reload().Plan)
}

func (s *SubscriptionLifecycleSuite) TestAdminEditBillingFields() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 5))

	_, err := s.subs.AdminEdit(s.GetContext(), dto.AdminEditRequest{
		TenantID:  testTenantID,
		Plan:      lo.ToPtr(types.PlanBusiness),
		Amount:    lo.ToPtr(int64(99000)),
		Note:      "contract migration",
		Requester: s.admin(),
	})
	s.Require().NoError(err)

	sub := s.reload()
	s.Equal(types.PlanBusiness, sub.Plan)
	s.Equal(types.PlanBasic, sub.PreviousPlan)
	s.Equal(int64(39000), sub.PreviousAmount)

	segs := s.segments()
	s.Require().Len(segs, 2)
	s.Equal(types.ChangeTypeAdminEdit, segs[0].ChangeType)
	s.Equal("contract migration", segs[0].Note)
	s.assertHistoryContinuity()
	s.Zero(s.GetGateway().TotalCalls())

	s.Advance(time.Hour)
	_, err = s.subs.AdminEdit(s.GetContext(), dto.AdminEditRequest{
		TenantID:    testTenantID,
		DisplayName: lo.ToPtr("Acme Corp"),
		Requester:   s.admin(),
	})
	s.Require().NoError(err)
	s.Equal("Acme Corp", s.reload().DisplayName)
	s.Len(s.segments(), 2)
}

func (s *SubscriptionLifecycleSuite) TestAdminEditDescriptiveOnly() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 5))
	before := s.reload()

	res, err := s.subs.AdminEdit(s.GetContext(), dto.AdminEditRequest{
		TenantID:    testTenantID,
		DisplayName: lo.ToPtr("Acme Corp"),
		Note:        "rename",
		Requester:   s.admin(),
	})
	s.Require().NoError(err)
	s.False(res.Noop)

	sub := s.reload()
	s.Equal("Acme Corp", sub.DisplayName)
	s.Equal(before.Version+1, sub.Version)
	s.Equal(types.PlanBasic, sub.Plan)
	s.Len(s.segments(), 1)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionAdminEdited), 1)

	// same name again writes nothing
	res, err = s.subs.AdminEdit(s.GetContext(), dto.AdminEditRequest{
		TenantID:    testTenantID,
		DisplayName: lo.ToPtr("Acme Corp"),
		Requester:   s.admin(),
	})
	s.Require().NoError(err)
	s.True(res.Noop)
	s.Equal(sub.Version, s.reload().Version)
	s.Len(s.webhookEvents(types.WebhookEventSubscriptionAdminEdited), 1)
}

func (s *SubscriptionLifecycleSuite) TestAdminEditRejectsInvertedPeriod() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))

	_, err := s.subs.AdminEdit(s.GetContext(), dto.AdminEditRequest{
		TenantID:         testTenantID,
		CurrentPeriodEnd: lo.ToPtr(s.Day(2024, 2, 1)),
		Requester:        s.admin(),
	})
	s.True(ierr.IsValidation(err))

	_, err = s.subs.AdminEdit(s.GetContext(), dto.AdminEditRequest{
		TenantID:         testTenantID,
		AmountPeriodDays: lo.ToPtr(0),
		Requester:        s.admin(),
	})
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionLifecycleSuite) TestAdminManualPayment() {
	s.seedSubscription(types.PlanBasic, types.SubscriptionStatusActive, 39000, s.Day(2024, 3, 1), s.Day(2024, 4, 1))
	s.SetNow(s.Day(2024, 3, 5))

	req := dto.AdminEditRequest{
		TenantID: testTenantID,
		ManualPayment: &dto.ManualPaymentRequest{
			Amount:         50000,
			IdempotencyKey: "manual-1",
		},
		Requester: s.admin(),
	}
	res, err := s.subs.AdminEdit(s.GetContext(), req)
	s.Require().NoError(err)
	s.Equal(int64(50000), res.ChargedAmount)

	rows := s.payments()
	s.Require().Len(rows, 2)
	manual := rows[0]
	s.Equal(types.PaymentTypeAdminManual, manual.Type)
	s.Equal(types.PaymentStatusDone, manual.Status)
	s.Equal("manual", manual.Method)
	s.Empty(manual.PaymentKey)
	s.True(strings.HasPrefix(manual.OrderID, types.SHORT_ID_PREFIX_ADMIN_ORDER))
	s.Zero(s.GetGateway().TotalCalls())
	s.Len(s.segments(), 1)

	s.Advance(time.Minute)
	replayed, err := s.subs.AdminEdit(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(replayed.Replayed)
	s.Equal(manual.OrderID, replayed.Charge.OrderID)
	s.Len(s.payments(), 2)
}

// startTrialWithCard starts a trial and registers one card on it
func (s *SubscriptionLifecycleSuite) startTrialWithCard() {
	_, err := s.subs.CreateTrial(s.GetContext(), dto.CreateTrialRequest{
		TenantID:    testTenantID,
		OwnerUserID: testOwnerID,
		Email:       "owner@acme.test",
	})
	s.Require().NoError(err)

	s.Advance(time.Hour)
	_, err = s.cards.AddCard(s.GetContext(), dto.AddCardRequest{
		TenantID:   testTenantID,
		BillingKey: "bk_trial",
		CardInfo:   types.CardInfo{Number: "9410****5678", Company: "Samsung", CardType: "credit"},
		Requester:  s.owner(),
	})
	s.Require().NoError(err)
	s.Require().Equal("bk_trial", s.reload().BillingKey)
	s.Advance(time.Hour)
}
