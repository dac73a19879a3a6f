package dto

import (
	"encoding/json"
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// Envelope is what receivers get over the wire
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	TenantID  string          `json:"tenant_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewEnvelope(event *types.WebhookEvent) *Envelope {
	return &Envelope{
		EventID:   event.ID,
		EventType: event.EventName,
		TenantID:  event.TenantID,
		Timestamp: event.Timestamp,
		Data:      event.Payload,
	}
}
