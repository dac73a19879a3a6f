package webhook

import (
	"context"

	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/logger"
	pubsubRouter "github.com/acctportal/billingcore/internal/pubsub/router"
	"github.com/acctportal/billingcore/internal/webhook/handler"
	"github.com/acctportal/billingcore/internal/webhook/publisher"
	"go.uber.org/fx"
)

// WebhookService owns the router that drains the webhook topic
type WebhookService struct {
	config    *config.Configuration
	publisher publisher.WebhookPublisher
	handler   handler.Handler
	router    *pubsubRouter.Router
	logger    *logger.Logger
	cancel    context.CancelFunc
}

func NewWebhookService(
	cfg *config.Configuration,
	publisher publisher.WebhookPublisher,
	h handler.Handler,
	router *pubsubRouter.Router,
	logger *logger.Logger,
) *WebhookService {
	return &WebhookService{
		config:    cfg,
		publisher: publisher,
		handler:   h,
		router:    router,
		logger:    logger,
	}
}

// Start registers the delivery handler and runs the router in the background.
// It returns once the router is subscribed.
func (s *WebhookService) Start(ctx context.Context) error {
	if !s.config.Webhook.Enabled {
		s.logger.Info("webhook delivery disabled")
		return nil
	}

	s.handler.RegisterHandler(s.router)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go func() {
		if err := s.router.Run(runCtx); err != nil {
			s.logger.Errorw("webhook router stopped", "error", err)
		}
	}()

	select {
	case <-s.router.Running():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("webhook delivery started")
	return nil
}

func (s *WebhookService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	if err := s.router.Close(); err != nil {
		s.logger.Errorw("failed to close webhook router", "error", err)
		return err
	}
	if err := s.publisher.Close(); err != nil {
		s.logger.Errorw("failed to close webhook publisher", "error", err)
		return err
	}

	s.logger.Info("webhook delivery stopped")
	return nil
}

func RegisterHooks(lc fx.Lifecycle, svc *WebhookService) {
	lc.Append(fx.Hook{
		OnStart: svc.Start,
		OnStop: func(context.Context) error {
			return svc.Stop()
		},
	})
}
