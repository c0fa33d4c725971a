package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds typed configuration for the notifier service.
type Config struct {
	LogLevel        string        `validate:"oneof=debug info warn error"`
	Channel         string        `validate:"required,oneof=email webhook log"`
	KafkaBrokers    string        `validate:"required"`
	GroupID         string        `validate:"required"`
	RedisAddr       string
	RedisPassword   string
	MaxRetries      int           `validate:"gte=0,lte=10"`
	DeliveryTimeout time.Duration `validate:"gt=0"`
	RetryBaseDelay  time.Duration `validate:"gt=0"`
	RetryMaxDelay   time.Duration `validate:"gtefield=RetryBaseDelay"`
	SMTPHost        string        `validate:"required_if=Channel email"`
	SMTPPort        int           `validate:"required_if=Channel email,gte=0,lte=65535"`
	SMTPFrom        string        `validate:"required_if=Channel email,omitempty,email"`
	SMTPUsername    string
	SMTPPassword    string
	EmailDomain     string        `validate:"omitempty,fqdn"`
	WebhookURL      string        `validate:"required_if=Channel webhook,omitempty,url"`
	WebhookTimeout  time.Duration
	MetricsAddr     string
	OTelEndpoint    string
	OTelSampleRatio float64 `validate:"gte=0,lte=1"`
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		Channel:         v.GetString("channel"),
		KafkaBrokers:    v.GetString("kafka_brokers"),
		GroupID:         v.GetString("group_id"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		MaxRetries:      v.GetInt("max_retries"),
		DeliveryTimeout: v.GetDuration("delivery_timeout"),
		RetryBaseDelay:  v.GetDuration("retry_base_delay"),
		RetryMaxDelay:   v.GetDuration("retry_max_delay"),
		SMTPHost:        v.GetString("smtp_host"),
		SMTPPort:        v.GetInt("smtp_port"),
		SMTPFrom:        v.GetString("smtp_from"),
		SMTPUsername:    v.GetString("smtp_username"),
		SMTPPassword:    v.GetString("smtp_password"),
		EmailDomain:     v.GetString("email_domain"),
		WebhookURL:      v.GetString("webhook_url"),
		WebhookTimeout:  v.GetDuration("webhook_timeout"),
		MetricsAddr:     v.GetString("metrics_addr"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
		OTelSampleRatio: v.GetFloat64("otel_sample_ratio"),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("notifier config: %w", err)
	}
	return nil
}
