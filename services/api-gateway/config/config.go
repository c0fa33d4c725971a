package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds typed configuration for the api-gateway service.
type Config struct {
	LogLevel        string        `validate:"oneof=debug info warn error"`
	HTTPPort        string        `validate:"required,numeric"`
	MetricsAddr     string
	StoreDriver     string        `validate:"required,oneof=postgres sqlite"`
	PostgresDSN     string        `validate:"required_if=StoreDriver postgres"`
	PostgresMaxConn int32         `validate:"gte=0"`
	SQLitePath      string
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    string
	JWTSecret       string        `validate:"required,min=16"`
	RateLimit       int           `validate:"gte=0"`
	RateWindow      time.Duration `validate:"required_with=RateLimit,omitempty,gt=0"`
	MaxBodyBytes    int64         `validate:"gt=0"`
	OTelEndpoint    string
	OTelSampleRatio float64 `validate:"gte=0,lte=1"`
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		HTTPPort:        v.GetString("http_port"),
		MetricsAddr:     v.GetString("metrics_addr"),
		StoreDriver:     v.GetString("store_driver"),
		PostgresDSN:     v.GetString("postgres_dsn"),
		PostgresMaxConn: v.GetInt32("postgres_max_conns"),
		SQLitePath:      v.GetString("sqlite_path"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		KafkaBrokers:    v.GetString("kafka_brokers"),
		JWTSecret:       v.GetString("jwt_secret"),
		RateLimit:       v.GetInt("rate_limit"),
		RateWindow:      v.GetDuration("rate_window"),
		MaxBodyBytes:    v.GetInt64("max_body_bytes"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
		OTelSampleRatio: v.GetFloat64("otel_sample_ratio"),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("api-gateway config: %w", err)
	}
	return nil
}
