// Package notifier consumes reminder events and delivers them over the
// configured notification channel.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/handlers"
	"github.com/ramiqadoumi/go-care-tasks/internal/kafka"
	redisstore "github.com/ramiqadoumi/go-care-tasks/internal/redis"
	"github.com/ramiqadoumi/go-care-tasks/internal/reminders"
	"github.com/ramiqadoumi/go-care-tasks/pkg/retry"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
)

// deadLetter is what lands on the DLQ topic.
type deadLetter struct {
	Reminder json.RawMessage `json:"reminder"`
	Channel  string          `json:"channel"`
	Error    string          `json:"error"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
}

// Notifier delivers reminders consumed from Kafka.
type Notifier struct {
	consumer   kafka.Consumer
	producer   kafka.Producer
	registry   *handlers.Registry
	ledger     redisstore.DeliveryLedger
	channel    string
	maxRetries int
	timeout    time.Duration
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

func WithRetries(retries int) Option                { return func(n *Notifier) { n.maxRetries = retries } }
func WithTimeout(d time.Duration) Option            { return func(n *Notifier) { n.timeout = d } }
func WithLogger(l *slog.Logger) Option              { return func(n *Notifier) { n.logger = l } }
func WithBaseDelay(d time.Duration) Option          { return func(n *Notifier) { n.baseDelay = d } }
func WithMaxDelay(d time.Duration) Option           { return func(n *Notifier) { n.maxDelay = d } }
func WithLedger(l redisstore.DeliveryLedger) Option { return func(n *Notifier) { n.ledger = l } }

// New constructs a Notifier delivering over channel.
func New(
	channel string,
	consumer kafka.Consumer,
	producer kafka.Producer,
	registry *handlers.Registry,
	opts ...Option,
) *Notifier {
	n := &Notifier{
		channel:    channel,
		consumer:   consumer,
		producer:   producer,
		registry:   registry,
		maxRetries: 3,
		timeout:    30 * time.Second,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run consumes reminders until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	return n.consumer.Subscribe(ctx, n.processMessage)
}

// Wait blocks until in-flight deliveries finish. Call after Run returns.
func (n *Notifier) Wait() { n.wg.Wait() }

// processMessage always returns nil so the offset is committed; failures
// go to the DLQ.
func (n *Notifier) processMessage(consumerCtx context.Context, msg kafka.Message) error {
	n.wg.Add(1)
	defer n.wg.Done()

	r, err := reminders.Decode(msg.Value)
	if err != nil {
		n.logger.Error("malformed reminder, dead-lettering",
			slog.String("error", err.Error()),
			slog.Int64("offset", msg.Offset),
		)
		n.deadLetter(consumerCtx, string(msg.Key), msg.Value, err, 0)
		return nil
	}

	ctx, span := otel.Tracer("notifier").Start(consumerCtx, "notifier.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", r.TaskID),
		attribute.String("tenant.id", r.TenantID),
		attribute.String("notifier.channel", n.channel),
	)

	log := n.logger.With(
		slog.String("task_id", r.TaskID),
		slog.String("tenant_id", r.TenantID),
	)

	h, err := n.registry.Get(n.channel)
	if err != nil {
		log.Error("no handler for channel", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no handler registered")
		n.deadLetter(ctx, r.TaskID, msg.Value, err, 0)
		return nil
	}

	if n.ledger != nil {
		claimed, err := n.ledger.Claim(ctx, r)
		switch {
		case err != nil:
			// Without the ledger a duplicate is possible; a missed reminder is worse.
			log.Warn("delivery ledger unavailable", slog.String("error", err.Error()))
		case !claimed:
			log.Info("reminder already delivered, skipping")
			telemetry.RemindersDeliveredTotal.WithLabelValues(n.channel, "duplicate").Inc()
			return nil
		}
	}

	start := time.Now()
	attempts := 0
	deliverErr := retry.Do(ctx, retry.Config{
		MaxAttempts: n.maxRetries + 1,
		BaseDelay:   n.baseDelay,
		MaxDelay:    n.maxDelay,
		Retryable:   isRetryable,
		OnRetry: func(attempt int, retryErr error) {
			telemetry.ReminderRetriesTotal.WithLabelValues(n.channel).Inc()
			log.Warn("delivery failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func(ctx context.Context) error {
		attempts++
		// The handler timeout is independent of consumer shutdown; child
		// spans still hang off this delivery.
		execCtx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), span), n.timeout)
		defer cancel()
		return h.Handle(execCtx, r)
	})

	telemetry.ReminderDeliveryDurationSeconds.WithLabelValues(n.channel).Observe(time.Since(start).Seconds())

	if deliverErr == nil {
		log.Info("reminder delivered", slog.Int("attempts", attempts))
		telemetry.RemindersDeliveredTotal.WithLabelValues(n.channel, "delivered").Inc()
		return nil
	}

	log.Error("reminder delivery failed",
		slog.Int("attempts", attempts),
		slog.String("error", deliverErr.Error()),
	)
	span.RecordError(deliverErr)
	span.SetStatus(codes.Error, "delivery failed")
	telemetry.RemindersDeliveredTotal.WithLabelValues(n.channel, "failed").Inc()

	if n.ledger != nil {
		if err := n.ledger.Release(ctx, r); err != nil {
			log.Warn("release delivery claim failed", slog.String("error", err.Error()))
		}
	}
	n.deadLetter(ctx, r.TaskID, msg.Value, deliverErr, attempts)
	return nil
}

func (n *Notifier) deadLetter(ctx context.Context, key string, raw []byte, cause error, attempts int) {
	dl := deadLetter{
		Channel:  n.channel,
		Error:    cause.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if json.Valid(raw) {
		dl.Reminder = raw
	} else {
		dl.Reminder, _ = json.Marshal(string(raw))
	}
	if err := kafka.PublishJSON(ctx, n.producer, kafka.TopicRemindersDLQ, key, dl); err != nil {
		n.logger.Error("failed to publish to DLQ", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	telemetry.ReminderDLQTotal.WithLabelValues(n.channel).Inc()
}

func isRetryable(err error) bool {
	var perm *domain.PermanentError
	return !errors.As(err, &perm)
}
