package types

// PubSubType selects the transport behind the webhook topic
type PubSubType string

const (
	MemoryPubSub PubSubType = "memory"
)

const (
	// SystemEventsTopic carries webhook events from the core to the delivery handler
	SystemEventsTopic = "system_events"
)
