package config

import (
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// Webhook represents the configuration for the webhook system
type Webhook struct {
	Enabled bool                           `mapstructure:"enabled"`
	Topic   string                         `mapstructure:"topic" default:"system_events"`
	PubSub  types.PubSubType               `mapstructure:"pubsub" default:"memory"`
	Tenants map[string]TenantWebhookConfig `mapstructure:"tenants"`
	Svix    Svix                           `mapstructure:"svix"`

	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

// TenantWebhookConfig represents webhook configuration for a specific tenant
type TenantWebhookConfig struct {
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
	// Secret signs deliveries with an HMAC-SHA256 header when set
	Secret         string   `mapstructure:"secret"`
	Enabled        bool     `mapstructure:"enabled"`
	ExcludedEvents []string `mapstructure:"excluded_events"`
}

// Svix routes deliveries through svix instead of posting directly
type Svix struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"auth_token"`
	BaseURL   string `mapstructure:"base_url"`
}
