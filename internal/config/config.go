package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acctportal/billingcore/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Store      StoreConfig      `validate:"required"`
	Postgres   PostgresConfig
	DynamoDB   DynamoDBConfig
	Redis      RedisConfig
	Lock       LockConfig    `validate:"required"`
	Gateway    GatewayConfig `validate:"required"`
	Billing    BillingConfig `validate:"required"`
	Webhook    Webhook
	Secrets    SecretsConfig
	Sentry     SentryConfig
	Cache      CacheConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type SecretsConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" default:"1.0"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

func NewConfig() (*Configuration, error) {
	// a local .env is optional; real deployments inject env vars directly
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billingcore")

	v.SetEnvPrefix("BILLINGCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("store.type", types.StoreTypePostgres)
	v.SetDefault("lock.type", types.LockTypeMemory)
	v.SetDefault("lock.ttl", 2*time.Minute)
	v.SetDefault("lock.wait_timeout", 30*time.Second)
	v.SetDefault("gateway.provider", types.GatewayProviderToss)
	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("gateway.max_retries", 2)
	v.SetDefault("gateway.rate_limit_per_second", 20)
	v.SetDefault("billing.timezone", DefaultTimezone)
	v.SetDefault("billing.currency", DefaultCurrency)
	v.SetDefault("billing.trial_days", DefaultTrialDays)
	v.SetDefault("billing.max_cards", DefaultMaxCards)
	v.SetDefault("webhook.topic", types.SystemEventsTopic)
	v.SetDefault("webhook.pubsub", types.MemoryPubSub)
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.initial_interval", time.Second)
	v.SetDefault("webhook.max_interval", 10*time.Second)
	v.SetDefault("webhook.max_elapsed_time", time.Minute)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Billing.Validate(); err != nil {
		return err
	}
	switch c.Store.Type {
	case types.StoreTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required when store.type is postgres")
		}
	case types.StoreTypeDynamoDB:
		if c.DynamoDB.Region == "" {
			return fmt.Errorf("dynamodb.region is required when store.type is dynamodb")
		}
	}
	if c.Lock.Type == types.LockTypeRedis && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when lock.type is redis")
	}
	if c.Lock.Type == types.LockTypePostgres && c.Store.Type != types.StoreTypePostgres {
		return fmt.Errorf("lock.type postgres requires store.type postgres")
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts and tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Store:      StoreConfig{Type: types.StoreTypePostgres},
		Lock: LockConfig{
			Type:        types.LockTypeMemory,
			TTL:         2 * time.Minute,
			WaitTimeout: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			Provider:           types.GatewayProviderToss,
			Timeout:            15 * time.Second,
			MaxRetries:         2,
			RateLimitPerSecond: 20,
		},
		Billing: DefaultBillingConfig(),
		Webhook: Webhook{
			Topic:           types.SystemEventsTopic,
			PubSub:          types.MemoryPubSub,
			MaxRetries:      3,
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
			MaxElapsedTime:  time.Minute,
		},
		Cache: CacheConfig{Enabled: true, TTL: 10 * time.Minute},
	}
}
