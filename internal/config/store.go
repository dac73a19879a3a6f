package config

import (
	"fmt"
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

type StoreConfig struct {
	Type types.StoreType `mapstructure:"type" validate:"required,oneof=postgres dynamodb"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// DynamoDBConfig holds the table layout used when store.type is dynamodb
type DynamoDBConfig struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	TableName string `mapstructure:"table_name" default:"billingcore"`
	// OwnerIndexName is the GSI keyed by owner_user_id used for cross-tenant history
	OwnerIndexName string `mapstructure:"owner_index_name" default:"owner-index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LockConfig configures the per-tenant mutation lock
type LockConfig struct {
	Type        types.LockType `mapstructure:"type" validate:"required,oneof=memory postgres redis"`
	TTL         time.Duration  `mapstructure:"ttl"`
	WaitTimeout time.Duration  `mapstructure:"wait_timeout"`
}
