package types

type RunMode string

const (
	// ModeLocal runs the API server with local defaults
	ModeLocal RunMode = "local"
	// ModeAPI runs just the API server
	ModeAPI RunMode = "api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// StoreType selects the persistent store backing the repositories
type StoreType string

const (
	StoreTypePostgres StoreType = "postgres"
	StoreTypeDynamoDB StoreType = "dynamodb"
)

// LockType selects the per-tenant lock implementation
type LockType string

const (
	LockTypeMemory   LockType = "memory"
	LockTypePostgres LockType = "postgres"
	LockTypeRedis    LockType = "redis"
)

// GatewayProvider selects the payment gateway client
type GatewayProvider string

const (
	GatewayProviderToss   GatewayProvider = "toss"
	GatewayProviderStripe GatewayProvider = "stripe"
)
