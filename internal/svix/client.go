package svix

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	svix "github.com/svix/svix-webhooks/go"
	"github.com/svix/svix-webhooks/go/models"
)

const appPrefix = "billing_"

// Client forwards webhook events to Svix, one application per tenant.
// A disabled client accepts every call and does nothing.
type Client struct {
	client  *svix.Svix
	enabled bool
	logger  *logger.Logger
}

func NewClient(cfg *config.Configuration, logger *logger.Logger) (*Client, error) {
	if !cfg.Webhook.Svix.Enabled {
		return &Client{enabled: false, logger: logger}, nil
	}

	opts := &svix.SvixOptions{}
	if cfg.Webhook.Svix.BaseURL != "" {
		serverURL, err := url.Parse(cfg.Webhook.Svix.BaseURL)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("webhook.svix.base_url is not a valid URL").
				Mark(ierr.ErrValidation)
		}
		opts.ServerUrl = serverURL
	}

	svixClient, err := svix.New(cfg.Webhook.Svix.AuthToken, opts)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to create svix client").
			Mark(ierr.ErrSystem)
	}

	return &Client{
		client:  svixClient,
		enabled: true,
		logger:  logger,
	}, nil
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// GetOrCreateApplication returns the tenant's application id, creating it on first use
func (c *Client) GetOrCreateApplication(ctx context.Context, tenantID string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	uid := appPrefix + tenantID
	if app, err := c.client.Application.Get(ctx, uid); err == nil {
		return app.Id, nil
	}

	app, err := c.client.Application.Create(ctx, models.ApplicationIn{
		Name: uid,
		Uid:  &uid,
	}, &svix.ApplicationCreateOptions{IdempotencyKey: &uid})
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("failed to create svix application").
			WithReportableDetails(map[string]any{"tenant_id": tenantID}).
			Mark(ierr.ErrHTTPClient)
	}

	c.logger.Infow("created svix application", "tenant_id", tenantID, "app_id", app.Id)
	return app.Id, nil
}

// SendMessage posts one event. eventID doubles as the Svix idempotency key so
// a redelivered message is not fanned out twice.
func (c *Client) SendMessage(ctx context.Context, applicationID, eventType, eventID string, payload json.RawMessage) error {
	if !c.Enabled() {
		return nil
	}

	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payload, &payloadMap); err != nil {
		return ierr.WithError(err).
			WithHint("webhook payload must be a JSON object").
			Mark(ierr.ErrValidation)
	}

	_, err := c.client.Message.Create(ctx, applicationID, models.MessageIn{
		EventType: eventType,
		EventId:   &eventID,
		Payload:   payloadMap,
	}, &svix.MessageCreateOptions{IdempotencyKey: &eventID})
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to send svix message").
			WithReportableDetails(map[string]any{
				"event_type": eventType,
				"event_id":   eventID,
			}).
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}
