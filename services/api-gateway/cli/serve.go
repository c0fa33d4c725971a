package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-care-tasks/internal/audit"
	"github.com/ramiqadoumi/go-care-tasks/internal/kafka"
	redisstore "github.com/ramiqadoumi/go-care-tasks/internal/redis"
	"github.com/ramiqadoumi/go-care-tasks/internal/storage"
	"github.com/ramiqadoumi/go-care-tasks/internal/taskservice"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
	"github.com/ramiqadoumi/go-care-tasks/services/api-gateway/config"
	"github.com/ramiqadoumi/go-care-tasks/services/api-gateway/handler"
	"github.com/ramiqadoumi/go-care-tasks/services/api-gateway/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("store-driver", storage.DriverPostgres, "task store: postgres | sqlite")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	serveCmd.Flags().Int32("postgres-max-conns", 0, "pool size; 0 keeps the pgx default")
	serveCmd.Flags().String("sqlite-path", "data/care_tasks.db", "SQLite database file")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address; empty uses an in-process cache and no rate limit")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().String("kafka-brokers", "", "comma-separated Kafka brokers for audit events; empty logs them only")
	serveCmd.Flags().String("jwt-secret", "", "HS256 secret bearer tokens are signed with")
	serveCmd.Flags().Int("rate-limit", 600, "requests per tenant per window; 0 disables")
	serveCmd.Flags().Duration("rate-window", time.Minute, "rate limit window")
	serveCmd.Flags().Int64("max-body-bytes", 1<<20, "largest accepted request body")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().Float64("otel-sample-ratio", 1, "fraction of traces sampled")

	for _, name := range []string{
		"http-port", "metrics-addr",
		"store-driver", "postgres-dsn", "postgres-max-conns", "sqlite-path",
		"redis-addr", "redis-password", "kafka-brokers",
		"jwt-secret", "rate-limit", "rate-window", "max-body-bytes",
		"otel-endpoint", "otel-sample-ratio",
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
	logger := buildLogger(cfg.LogLevel, "api-gateway")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "api-gateway", cfg.OTelEndpoint, cfg.OTelSampleRatio)
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
	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
		auditSink := audit.NewKafkaSink(producer, 0, logger)
		defer auditSink.Close()
		sinks = append(sinks, auditSink)
	}
	opts := []taskservice.Option{taskservice.WithLogger(logger), taskservice.WithAudit(sinks)}

	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, 0)
		defer func() { _ = redisClient.Close() }()
		opts = append(opts, taskservice.WithCache(redisstore.NewCache(redisClient)))
		if cfg.RateLimit > 0 {
			limiter = redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)
		}
	} else {
		logger.Warn("no redis configured, using an in-process cache without rate limiting")
	}

	svc := taskservice.New(repo, opts...)
	rest := handler.NewREST(svc, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	r.Get("/healthz", rest.Healthz)
	r.Get("/readyz", rest.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate([]byte(cfg.JWTSecret), logger))
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, logger))
		}
		r.Mount("/tasks", rest.Routes())
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, svc.Ping, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api-gateway HTTP starting",
			slog.String("addr", httpSrv.Addr),
			slog.String("store", cfg.StoreDriver),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("shutting down...")
	case err := <-serveErr:
		logger.Error("HTTP server error", slog.String("error", err.Error()))
		return fmt.Errorf("http server: %w", err)
	}
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
