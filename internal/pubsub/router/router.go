package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/metrics"
	"github.com/acctportal/billingcore/internal/pubsub"
	"github.com/acctportal/billingcore/internal/sentry"
)

const (
	retryMultiplier = 2.0
	dlqTopic        = "webhooks_dlq"
	dlqHandlerName  = "webhooks_dlq_reporter"
)

// Router runs message handlers with panic recovery, retries and a poison queue
type Router struct {
	router *message.Router
	dlq    *gochannel.GoChannel
	logger *logger.Logger
	sentry *sentry.Service
}

func NewRouter(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) (*Router, error) {
	wmLogger := pubsub.NewWatermillLogger(logger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	// messages that exhaust their retries go to the dlq topic, where
	// reportPoisoned logs and counts them before they are dropped
	dlq := gochannel.NewGoChannel(gochannel.Config{Persistent: false}, wmLogger)
	poisonQueue, err := middleware.PoisonQueue(dlq, dlqTopic)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:          int(cfg.Webhook.MaxRetries),
			InitialInterval:     cfg.Webhook.InitialInterval,
			MaxInterval:         cfg.Webhook.MaxInterval,
			Multiplier:          retryMultiplier,
			MaxElapsedTime:      cfg.Webhook.MaxElapsedTime,
			RandomizationFactor: 0.5,
			Logger:              wmLogger,
			OnRetryHook: func(retryNum int, delay time.Duration) {
				logger.Infow("retrying message",
					"retry_number", retryNum,
					"max_retries", cfg.Webhook.MaxRetries,
					"delay", delay,
				)
			},
		}.Middleware,
	)

	r := &Router{
		router: router,
		dlq:    dlq,
		logger: logger,
		sentry: sentry,
	}
	router.AddNoPublisherHandler(dlqHandlerName, dlqTopic, dlq, r.reportPoisoned)
	return r, nil
}

func (r *Router) reportPoisoned(msg *message.Message) error {
	eventName := msg.Metadata.Get("event_name")
	r.logger.Errorw("message dropped after exhausting retries",
		"message_uuid", msg.UUID,
		"event_name", eventName,
		"tenant_id", msg.Metadata.Get("tenant_id"),
		"handler", msg.Metadata.Get(middleware.PoisonedHandlerKey),
		"topic", msg.Metadata.Get(middleware.PoisonedTopicKey),
		"reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey),
	)
	r.sentry.CaptureException(ierr.NewErrorf("webhook message %s dropped after exhausting retries", msg.UUID).
		WithReportableDetails(map[string]any{
			"event_name": eventName,
			"reason":     msg.Metadata.Get(middleware.ReasonForPoisonedKey),
		}).
		Mark(ierr.ErrSystem))
	metrics.WebhookPoisonedTotal.WithLabelValues(eventName).Inc()
	return nil
}

// AddNoPublishHandler registers a consumer that does not emit follow-up messages
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			err := handlerFunc(msg)
			if err != nil {
				r.sentry.CaptureException(err)
				r.logger.Errorw("handler failed",
					"error", err,
					"handler", handlerName,
					"correlation_id", middleware.MessageCorrelationID(msg),
					"message_uuid", msg.UUID,
				)
			}
			return err
		},
	)

	for _, mw := range middlewares {
		handler.AddMiddleware(mw)
	}
}

// Run blocks until ctx is done or the router is closed
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("starting message router")
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	r.logger.Info("closing message router")
	if err := r.router.Close(); err != nil {
		return err
	}
	return r.dlq.Close()
}
