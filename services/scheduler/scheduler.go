// Package scheduler fires the overdue and reminder sweeps for every tenant
// on cron schedules. Replicas elect a leader in Redis; only the leader
// sweeps.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
)

const (
	SweepOverdue   = "overdue"
	SweepReminders = "reminders"
)

// Sweeper runs one sweep for the tenant carried by ctx.
type Sweeper interface {
	MarkOverdueTasks(ctx context.Context) (int, error)
	ProcessTaskReminders(ctx context.Context) (int, error)
}

// TenantLister enumerates the tenants to sweep.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// Leader is a renewable lease shared by the replicas.
type Leader interface {
	AcquireOrRenew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Config holds the schedules and timings.
type Config struct {
	OverdueSpec   string
	ReminderSpec  string
	RenewInterval time.Duration
	TenantTimeout time.Duration
}

// Scheduler triggers sweeps on cron schedules.
type Scheduler struct {
	sweeper TenantSweeper
	leader  Leader
	cfg     Config
	logger  *slog.Logger

	cron     *cron.Cron
	isLeader atomic.Bool
}

// TenantSweeper is what the scheduler drives: the sweeps plus the tenant list.
type TenantSweeper interface {
	Sweeper
	TenantLister
}

// New validates the cron specs and builds a Scheduler. A nil leader makes
// this instance always lead, which suits a single replica.
func New(sweeper TenantSweeper, leader Leader, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.RenewInterval <= 0 {
		cfg.RenewInterval = 10 * time.Second
	}
	if cfg.TenantTimeout <= 0 {
		cfg.TenantTimeout = 30 * time.Second
	}

	for _, spec := range []string{cfg.OverdueSpec, cfg.ReminderSpec} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
		}
	}

	s := &Scheduler{sweeper: sweeper, leader: leader, cfg: cfg, logger: logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo)))),
	)
	return s, nil
}

// Run starts the cron jobs and keeps the leader lease renewed until ctx is
// cancelled. The lease is released on the way out.
func (s *Scheduler) Run(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{SweepOverdue, s.cfg.OverdueSpec, s.sweeper.MarkOverdueTasks},
		{SweepReminders, s.cfg.ReminderSpec, s.sweeper.ProcessTaskReminders},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.Sweep(ctx, j.name, j.run) }); err != nil {
			return fmt.Errorf("schedule %s sweep %q: %w", j.name, j.spec, err)
		}
	}

	s.renew(ctx)
	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.String("overdue_spec", s.cfg.OverdueSpec),
		slog.String("reminder_spec", s.cfg.ReminderSpec),
	)

	ticker := time.NewTicker(s.cfg.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			if s.leader != nil && s.isLeader.Load() {
				relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := s.leader.Release(relCtx); err != nil {
					s.logger.Warn("leader release failed", slog.String("error", err.Error()))
				}
				cancel()
			}
			return nil
		case <-ticker.C:
			s.renew(ctx)
		}
	}
}

// IsLeader reports whether this instance currently sweeps.
func (s *Scheduler) IsLeader() bool {
	return s.leader == nil || s.isLeader.Load()
}

func (s *Scheduler) renew(ctx context.Context) {
	if s.leader == nil {
		return
	}
	ok, err := s.leader.AcquireOrRenew(ctx)
	if err != nil {
		s.logger.Error("leader election", slog.String("error", err.Error()))
		ok = false
	}
	if was := s.isLeader.Swap(ok); was != ok {
		if ok {
			s.logger.Info("acquired scheduler leadership")
		} else {
			s.logger.Warn("lost scheduler leadership")
		}
	}
}

// Sweep runs one pass of sweep over every tenant. A failing tenant is
// logged and does not stop the others. Non-leaders skip the pass.
func (s *Scheduler) Sweep(ctx context.Context, name string, sweep func(context.Context) (int, error)) {
	if !s.IsLeader() {
		telemetry.SweepRunsTotal.WithLabelValues(name, "skipped").Inc()
		return
	}

	ctx, span := otel.Tracer("scheduler").Start(ctx, "scheduler.sweep")
	defer span.End()
	span.SetAttributes(attribute.String("sweep", name))

	start := time.Now()
	defer func() {
		telemetry.SweepDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	tenants, err := s.sweeper.ListTenants(ctx)
	if err != nil {
		span.RecordError(err)
		telemetry.SweepRunsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error("list tenants", slog.String("sweep", name), slog.String("error", err.Error()))
		return
	}

	total, failed := 0, 0
	for _, tenantID := range tenants {
		tctx, cancel := context.WithTimeout(domain.WithTenant(ctx, tenantID), s.cfg.TenantTimeout)
		n, err := sweep(tctx)
		cancel()
		if err != nil {
			failed++
			s.logger.Error("sweep failed",
				slog.String("sweep", name),
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
	}

	result := "ok"
	if failed > 0 {
		result = "error"
	}
	telemetry.SweepRunsTotal.WithLabelValues(name, result).Inc()
	span.SetAttributes(attribute.Int("sweep.tasks", total), attribute.Int("sweep.tenants", len(tenants)))
	s.logger.Info("sweep finished",
		slog.String("sweep", name),
		slog.Int("tenants", len(tenants)),
		slog.Int("failed_tenants", failed),
		slog.Int("tasks", total),
		slog.Duration("took", time.Since(start)),
	)
}
