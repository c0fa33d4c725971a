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

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-care-tasks/internal/audit"
	"github.com/ramiqadoumi/go-care-tasks/internal/kafka"
	redisstore "github.com/ramiqadoumi/go-care-tasks/internal/redis"
	"github.com/ramiqadoumi/go-care-tasks/internal/reminders"
	"github.com/ramiqadoumi/go-care-tasks/internal/storage"
	"github.com/ramiqadoumi/go-care-tasks/internal/taskservice"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
	"github.com/ramiqadoumi/go-care-tasks/services/scheduler"
	"github.com/ramiqadoumi/go-care-tasks/services/scheduler/config"
)

const leaderKey = "care:scheduler:leader"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("store-driver", storage.DriverPostgres, "task store: postgres | sqlite")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	serveCmd.Flags().Int32("postgres-max-conns", 0, "pool size; 0 keeps the pgx default")
	serveCmd.Flags().String("sqlite-path", "data/care_tasks.db", "SQLite database file")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address; empty disables leader election and the shared cache")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses; empty disables reminder events")
	serveCmd.Flags().String("overdue-spec", "@every 1m", "cron spec of the overdue sweep")
	serveCmd.Flags().String("reminder-spec", "@every 1m", "cron spec of the reminder sweep")
	serveCmd.Flags().Duration("leader-ttl", 30*time.Second, "leader lease duration")
	serveCmd.Flags().Duration("renew-interval", 10*time.Second, "how often the lease is acquired or renewed")
	serveCmd.Flags().Duration("tenant-timeout", 30*time.Second, "timeout of one tenant's sweep")
	serveCmd.Flags().String("metrics-addr", ":9094", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().Float64("otel-sample-ratio", 1, "fraction of traces sampled")

	for _, name := range []string{
		"store-driver", "postgres-dsn", "postgres-max-conns", "sqlite-path",
		"redis-addr", "redis-password", "kafka-brokers",
		"overdue-spec", "reminder-spec", "leader-ttl", "renew-interval", "tenant-timeout",
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
	logger := buildLogger(cfg.LogLevel, "scheduler")
	instanceID := "scheduler-" + uuid.New().String()[:8]

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "scheduler", cfg.OTelEndpoint, cfg.OTelSampleRatio)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	repo, closeStore, err := storage.Open(initCtx, storage.Config{
		Driver:      cfg.StoreDriver,
		PostgresDSN: cfg.PostgresDSN,
		MaxConns:    cfg.PostgresMaxConn,
		SQLitePath:  cfg.SQLitePath,
	})
	cancel()
	if err != nil {
		return err
	}
	defer closeStore()

	sinks := audit.Multi{audit.NewSlogSink(logger)}
	opts := []taskservice.Option{taskservice.WithLogger(logger)}

	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
		defer func() { _ = producer.Close() }()

		auditSink := audit.NewKafkaSink(producer, 0, logger)
		defer auditSink.Close()
		sinks = append(sinks, auditSink)
		opts = append(opts, taskservice.WithPublisher(reminders.NewKafkaPublisher(producer)))
	} else {
		logger.Warn("no kafka configured, reminders are flagged as sent without an event")
	}

	var leader scheduler.Leader
	if cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, 0)
		defer func() { _ = redisClient.Close() }()
		opts = append(opts, taskservice.WithCache(redisstore.NewCache(redisClient)))
		leader = redisstore.NewLeaderLock(redisClient, leaderKey, instanceID, cfg.LeaderTTL)
	} else {
		logger.Warn("no redis configured, this instance sweeps unconditionally")
	}
	opts = append(opts, taskservice.WithAudit(sinks))

	svc := taskservice.New(repo, opts...)

	sched, err := scheduler.New(svc, leader, scheduler.Config{
		OverdueSpec:   cfg.OverdueSpec,
		ReminderSpec:  cfg.ReminderSpec,
		RenewInterval: cfg.RenewInterval,
		TenantTimeout: cfg.TenantTimeout,
	}, logger)
	if err != nil {
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, svc.Ping, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
	}()

	logger.Info("scheduler starting",
		slog.String("instance_id", instanceID),
		slog.String("store", cfg.StoreDriver),
		slog.String("overdue_spec", cfg.OverdueSpec),
		slog.String("reminder_spec", cfg.ReminderSpec),
	)
	if err := sched.Run(runCtx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	logger.Info("stopped")
	return nil
}
