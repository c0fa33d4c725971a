package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds typed configuration for the scheduler service.
type Config struct {
	LogLevel        string        `validate:"oneof=debug info warn error"`
	StoreDriver     string        `validate:"required,oneof=postgres sqlite"`
	PostgresDSN     string        `validate:"required_if=StoreDriver postgres"`
	PostgresMaxConn int32         `validate:"gte=0"`
	SQLitePath      string
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    string
	OverdueSpec     string        `validate:"required"`
	ReminderSpec    string        `validate:"required"`
	LeaderTTL       time.Duration `validate:"required_with=RedisAddr,omitempty,gtfield=RenewInterval"`
	RenewInterval   time.Duration `validate:"gt=0"`
	TenantTimeout   time.Duration `validate:"gt=0"`
	MetricsAddr     string
	OTelEndpoint    string
	OTelSampleRatio float64 `validate:"gte=0,lte=1"`
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		StoreDriver:     v.GetString("store_driver"),
		PostgresDSN:     v.GetString("postgres_dsn"),
		PostgresMaxConn: v.GetInt32("postgres_max_conns"),
		SQLitePath:      v.GetString("sqlite_path"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		KafkaBrokers:    v.GetString("kafka_brokers"),
		OverdueSpec:     v.GetString("overdue_spec"),
		ReminderSpec:    v.GetString("reminder_spec"),
		LeaderTTL:       v.GetDuration("leader_ttl"),
		RenewInterval:   v.GetDuration("renew_interval"),
		TenantTimeout:   v.GetDuration("tenant_timeout"),
		MetricsAddr:     v.GetString("metrics_addr"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
		OTelSampleRatio: v.GetFloat64("otel_sample_ratio"),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}
	return nil
}
