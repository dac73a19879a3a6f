package config

import (
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// GatewayConfig configures the payment gateway client
type GatewayConfig struct {
	Provider           types.GatewayProvider `mapstructure:"provider" validate:"required,oneof=toss stripe"`
	BaseURL            string                `mapstructure:"base_url"`
	SecretKey          string                `mapstructure:"secret_key"`
	Timeout            time.Duration         `mapstructure:"timeout" validate:"required"`
	MaxRetries         int                   `mapstructure:"max_retries"`
	RateLimitPerSecond float64               `mapstructure:"rate_limit_per_second"`
}
