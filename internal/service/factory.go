package service

import (
	"time"

	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/domain/card"
	"github.com/acctportal/billingcore/internal/domain/history"
	"github.com/acctportal/billingcore/internal/domain/payment"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	"github.com/acctportal/billingcore/internal/gateway"
	"github.com/acctportal/billingcore/internal/lock"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/sentry"
	"github.com/acctportal/billingcore/internal/store"
	webhookPublisher "github.com/acctportal/billingcore/internal/webhook/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     store.Transactor
	Sentry *sentry.Service

	// Repositories
	SubRepo     subscription.Repository
	PaymentRepo payment.Repository
	HistoryRepo history.Repository
	CardRepo    card.Repository

	Gateway gateway.Gateway
	Locker  *lock.TenantLocker

	WebhookPublisher webhookPublisher.WebhookPublisher

	// Now is the clock every transition reads. Tests pin it.
	Now func() time.Time
}

func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db store.Transactor,
	sentry *sentry.Service,
	subRepo subscription.Repository,
	paymentRepo payment.Repository,
	historyRepo history.Repository,
	cardRepo card.Repository,
	gw gateway.Gateway,
	locker *lock.TenantLocker,
	webhookPublisher webhookPublisher.WebhookPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:           logger,
		Config:           config,
		DB:               db,
		Sentry:           sentry,
		SubRepo:          subRepo,
		PaymentRepo:      paymentRepo,
		HistoryRepo:      historyRepo,
		CardRepo:         cardRepo,
		Gateway:          gw,
		Locker:           locker,
		WebhookPublisher: webhookPublisher,
		Now:              time.Now,
	}
}

func (p ServiceParams) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
