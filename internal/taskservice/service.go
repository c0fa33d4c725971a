// Package taskservice is the tenant-scoped task API used by the HTTP
// gateway and the sweep scheduler. It layers cache-aside reads,
// invalidate-on-write, recurrence scheduling and reminder publishing over
// a store.TaskRepository.
package taskservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-care-tasks/internal/audit"
	"github.com/ramiqadoumi/go-care-tasks/internal/cache"
	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/reminders"
	"github.com/ramiqadoumi/go-care-tasks/internal/store"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
)

// ReminderWindow is how far ahead of now the reminder sweep looks.
const ReminderWindow = 5 * time.Minute

// DefaultUpcomingDays is used when GetUpcomingTasks is asked for no horizon.
const DefaultUpcomingDays = 7

// Service implements the task operations. It is safe for concurrent use.
type Service struct {
	repo      store.TaskRepository
	cache     cache.Cache
	audit     audit.Sink
	publisher reminders.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithCache(c cache.Cache) Option             { return func(s *Service) { s.cache = c } }
func WithAudit(a audit.Sink) Option              { return func(s *Service) { s.audit = a } }
func WithPublisher(p reminders.Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithLogger(l *slog.Logger) Option           { return func(s *Service) { s.logger = l } }
func WithClock(now func() time.Time) Option      { return func(s *Service) { s.now = now } }
func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// New constructs a Service over repo. Without options it caches in process
// memory, audits to the default logger and drops reminder events.
func New(repo store.TaskRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: reminders.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		tracer:    otel.Tracer("taskservice"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}
	if s.audit == nil {
		s.audit = audit.NewSlogSink(s.logger)
	}
	return s
}

// ListTenants returns every tenant owning live tasks. The sweep scheduler
// iterates it; it is the only call that is not tenant-scoped.
func (s *Service) ListTenants(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "taskservice.ListTenants")
	defer span.End()
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		s.fail(ctx, span, "ListTenants", "", err)
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// begin resolves the tenant and opens the operation span. The returned
// context carries the span.
func (s *Service) begin(ctx context.Context, op string) (context.Context, trace.Span, string, error) {
	ctx, span := s.tracer.Start(ctx, "taskservice."+op)
	tenantID, err := domain.TenantFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing tenant")
		return ctx, span, "", err
	}
	span.SetAttributes(attribute.String("tenant.id", tenantID))
	return ctx, span, tenantID, nil
}

// fail reports an infrastructure failure to the span, the audit sink and
// the error counter.
func (s *Service) fail(ctx context.Context, span trace.Span, op, tenantID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	telemetry.ServiceErrorsTotal.WithLabelValues(op).Inc()
	s.audit.LogError(ctx, auditEntry(op, tenantID, err))
}

func auditEntry(op, tenantID string, err error) audit.Entry {
	return audit.Entry{
		Message:       op + " failed",
		ComponentPath: "taskservice." + op,
		Severity:      audit.SeverityError,
		TenantID:      tenantID,
		Err:           err,
	}
}

// ─── cache helpers ───────────────────────────────────────────────────────────

// readThrough serves key from the cache or loads and stores it. Cache
// failures are logged and bypassed. Errors from load are never cached.
func readThrough[T any](ctx context.Context, s *Service, view, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	raw, hit, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		telemetry.CacheLookupsTotal.WithLabelValues(view, "error").Inc()
		s.logger.Warn("cache get failed", slog.String("key", key), slog.String("error", err.Error()))
	case hit:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			telemetry.CacheLookupsTotal.WithLabelValues(view, "hit").Inc()
			return v, nil
		}
		s.logger.Warn("discarding undecodable cache entry", slog.String("key", key))
	default:
		telemetry.CacheLookupsTotal.WithLabelValues(view, "miss").Inc()
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, key, data, ttl); err != nil {
			s.logger.Warn("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return v, nil
}

// invalidate drops the entries of the given tasks, every list-shaped entry
// of the tenant and the entries of each named assignee.
func (s *Service) invalidate(ctx context.Context, tenantID string, taskIDs []string, assignees ...string) {
	keys := cache.KeysFor(tenantID)

	if len(taskIDs) > 0 {
		taskKeys := make([]string, 0, len(taskIDs))
		for _, id := range taskIDs {
			taskKeys = append(taskKeys, keys.Task(id))
		}
		if err := s.cache.Delete(ctx, taskKeys...); err != nil {
			s.logger.Warn("cache delete failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		}
	}

	patterns := []string{keys.ListPattern()}
	seen := map[string]bool{}
	for _, a := range assignees {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		patterns = append(patterns, keys.AssigneePattern(a))
	}
	for _, p := range patterns {
		if err := s.cache.DeleteByPattern(ctx, p); err != nil {
			s.logger.Warn("cache pattern delete failed", slog.String("pattern", p), slog.String("error", err.Error()))
		}
	}
}
