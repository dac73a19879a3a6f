package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/httpclient"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/metrics"
	"github.com/acctportal/billingcore/internal/pubsub"
	pubsubRouter "github.com/acctportal/billingcore/internal/pubsub/router"
	"github.com/acctportal/billingcore/internal/sentry"
	"github.com/acctportal/billingcore/internal/svix"
	"github.com/acctportal/billingcore/internal/types"
	webhookDto "github.com/acctportal/billingcore/internal/webhook/dto"
	"github.com/samber/lo"
)

const (
	HeaderEventID   = "X-Webhook-Id"
	HeaderEventType = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

// Handler consumes webhook events from the topic and delivers them
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

type handler struct {
	pubSub     pubsub.PubSub
	config     *config.Webhook
	client     httpclient.Client
	logger     *logger.Logger
	sentry     *sentry.Service
	svixClient *svix.Client
}

func NewHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	client httpclient.Client,
	logger *logger.Logger,
	sentry *sentry.Service,
	svixClient *svix.Client,
) Handler {
	return &handler{
		pubSub:     pubSub,
		config:     &cfg.Webhook,
		client:     client,
		logger:     logger,
		sentry:     sentry,
		svixClient: svixClient,
	}
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"webhook_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

func (h *handler) processMessage(msg *message.Message) error {
	var event types.WebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to unmarshal webhook event",
			"error", err,
			"message_uuid", msg.UUID,
		)
		// a malformed message will never succeed
		return nil
	}

	ctx := types.SetTenantID(msg.Context(), event.TenantID)
	ctx = types.SetUserID(ctx, event.UserID)

	span, ctx := h.sentry.StartWebhookSpan(ctx, event.EventName, event.Timestamp)
	if span != nil {
		defer span.Finish()
	}

	var err error
	if h.svixClient.Enabled() {
		err = h.deliverSvix(ctx, &event)
	} else {
		err = h.deliverNative(ctx, &event)
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(event.EventName, metrics.Outcome(err)).Inc()

	if err != nil && !pubsubRouter.ShouldRetry(h.logger, err) {
		h.logger.Warnw("dropping webhook after non-retryable failure",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"tenant_id", event.TenantID,
		)
		return nil
	}
	return err
}

func (h *handler) deliverSvix(ctx context.Context, event *types.WebhookEvent) error {
	appID, err := h.svixClient.GetOrCreateApplication(ctx, event.TenantID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(webhookDto.NewEnvelope(event))
	if err != nil {
		return nil
	}

	if err := h.svixClient.SendMessage(ctx, appID, event.EventName, event.ID, body); err != nil {
		return err
	}

	h.logger.Infow("webhook sent via svix",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tenant_id", event.TenantID,
	)
	return nil
}

func (h *handler) deliverNative(ctx context.Context, event *types.WebhookEvent) error {
	tenantCfg, ok := h.config.Tenants[event.TenantID]
	if !ok || !tenantCfg.Enabled || tenantCfg.Endpoint == "" {
		h.logger.Debugw("no webhook endpoint for tenant",
			"tenant_id", event.TenantID,
			"event_id", event.ID,
		)
		return nil
	}

	if lo.Contains(tenantCfg.ExcludedEvents, event.EventName) {
		h.logger.Debugw("event excluded for tenant",
			"tenant_id", event.TenantID,
			"event_name", event.EventName,
		)
		return nil
	}

	body, err := json.Marshal(webhookDto.NewEnvelope(event))
	if err != nil {
		return nil
	}

	timestamp := strconv.FormatInt(event.Timestamp.Unix(), 10)
	headers := lo.Assign(tenantCfg.Headers, map[string]string{
		HeaderEventID:   event.ID,
		HeaderEventType: event.EventName,
		HeaderTimestamp: timestamp,
	})
	if tenantCfg.Secret != "" {
		headers[HeaderSignature] = Sign(tenantCfg.Secret, timestamp, body)
	}

	resp, err := h.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     tenantCfg.Endpoint,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		h.logger.Errorw("failed to send webhook",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"tenant_id", event.TenantID,
		)
		return err
	}

	h.logger.Infow("webhook sent",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tenant_id", event.TenantID,
		"status_code", resp.StatusCode,
	)
	return nil
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body" under secret
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
