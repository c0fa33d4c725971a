package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-care-tasks/internal/handlers"
	"github.com/ramiqadoumi/go-care-tasks/internal/kafka"
	redisstore "github.com/ramiqadoumi/go-care-tasks/internal/redis"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
	"github.com/ramiqadoumi/go-care-tasks/services/notifier"
	"github.com/ramiqadoumi/go-care-tasks/services/notifier/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the notifier",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("channel", "log", "delivery channel: email | webhook | log")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("group-id", "care-notifier", "Kafka consumer group")
	serveCmd.Flags().String("redis-addr", "", "Redis address for the delivery ledger; empty disables it")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("max-retries", 3, "retries after the first failed delivery")
	serveCmd.Flags().Duration("delivery-timeout", 30*time.Second, "timeout of one delivery attempt")
	serveCmd.Flags().Duration("retry-base-delay", time.Second, "base of the quadratic retry backoff")
	serveCmd.Flags().Duration("retry-max-delay", 30*time.Second, "cap on a single retry wait")
	serveCmd.Flags().String("smtp-host", "localhost", "SMTP server host")
	serveCmd.Flags().Int("smtp-port", 1025, "SMTP server port")
	serveCmd.Flags().String("smtp-from", "reminders@care.local", "SMTP sender address")
	serveCmd.Flags().String("smtp-username", "", "SMTP auth username")
	serveCmd.Flags().String("smtp-password", "", "SMTP auth password")
	serveCmd.Flags().String("email-domain", "", "domain appended to assignee ids that are not email addresses")
	serveCmd.Flags().String("webhook-url", "", "URL reminders are POSTed to")
	serveCmd.Flags().Duration("webhook-timeout", 15*time.Second, "webhook HTTP client timeout")
	serveCmd.Flags().String("metrics-addr", ":9093", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().Float64("otel-sample-ratio", 1, "fraction of traces sampled")

	for _, name := range []string{
		"channel", "kafka-brokers", "group-id", "redis-addr", "redis-password",
		"max-retries", "delivery-timeout", "retry-base-delay", "retry-max-delay",
		"smtp-host", "smtp-port", "smtp-from", "smtp-username", "smtp-password",
		"email-domain", "webhook-url", "webhook-timeout",
		"metrics-addr", "otel-endpoint", "otel-sample-ratio",
	} {
		bindFlag(strings.ReplaceAll(name, "-", "_"), serveCmd.Flags(), name)
	}
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := buildLogger(cfg.LogLevel, "notifier").With(slog.String("channel", cfg.Channel))

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "notifier", cfg.OTelEndpoint, cfg.OTelSampleRatio)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	consumer := kafka.NewConsumer(brokers, kafka.TopicReminders, cfg.GroupID, logger)
	defer func() { _ = consumer.Close() }()

	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	opts := []notifier.Option{
		notifier.WithLogger(logger),
		notifier.WithRetries(cfg.MaxRetries),
		notifier.WithTimeout(cfg.DeliveryTimeout),
		notifier.WithBaseDelay(cfg.RetryBaseDelay),
		notifier.WithMaxDelay(cfg.RetryMaxDelay),
	}

	var ready telemetry.ReadyFunc
	if cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, 0)
		defer func() { _ = redisClient.Close() }()
		opts = append(opts, notifier.WithLedger(redisstore.NewDeliveryLedger(redisClient)))
		ready = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		logger.Warn("no redis configured, redelivered reminders may notify twice")
	}

	registry := handlers.NewRegistry(
		handlers.NewLogHandler(logger),
		handlers.NewEmailHandler(handlers.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Domain:   cfg.EmailDomain,
		}),
		handlers.NewWebhookHandler(handlers.WebhookConfig{
			URL:     cfg.WebhookURL,
			Timeout: cfg.WebhookTimeout,
		}),
	)

	n := notifier.New(cfg.Channel, consumer, producer, registry, opts...)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, ready, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down, draining in-flight deliveries...")
		runCancel()
	}()

	logger.Info("notifier starting",
		slog.String("topic", kafka.TopicReminders),
		slog.String("group_id", cfg.GroupID),
		slog.Int("max_retries", cfg.MaxRetries),
	)

	if err := n.Run(runCtx); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	n.Wait()
	logger.Info("stopped cleanly")
	return nil
}
