package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/acctportal/billingcore/internal/types"
	webhookPublisher "github.com/acctportal/billingcore/internal/webhook/publisher"
	"github.com/samber/lo"
)

var _ webhookPublisher.WebhookPublisher = (*InMemoryWebhookPublisher)(nil)

// InMemoryWebhookPublisher keeps every published webhook event for inspection
type InMemoryWebhookPublisher struct {
	mu     sync.RWMutex
	events []*types.WebhookEvent

	// PublishErr, when set, fails every publish
	PublishErr error
}

func NewInMemoryWebhookPublisher() *InMemoryWebhookPublisher {
	return &InMemoryWebhookPublisher{}
}

func (p *InMemoryWebhookPublisher) PublishWebhook(ctx context.Context, event *types.WebhookEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.events = append(p.events, event)
	return nil
}

func (p *InMemoryWebhookPublisher) Close() error {
	return nil
}

// Events returns the published events with the given name, or all of them
// when name is empty
func (p *InMemoryWebhookPublisher) Events(name string) []*types.WebhookEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Filter(p.events, func(e *types.WebhookEvent, _ int) bool {
		return name == "" || e.EventName == name
	})
}

// DecodePayload unmarshals the payload of event into out
func DecodePayload(event *types.WebhookEvent, out any) error {
	return json.Unmarshal(event.Payload, out)
}

func (p *InMemoryWebhookPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
