package taskservice

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
)

// ProcessTaskReminders handles every reminder of the tenant due within the
// next ReminderWindow. Each task's reminder_sent flag is flipped with a
// conditional update before its event is published, so a reminder is
// published at most once; a failed publish is logged and not retried.
// Reminders whose window passed while no sweep ran are never picked up.
//
// It returns the number of reminders flipped by this call.
func (s *Service) ProcessTaskReminders(ctx context.Context) (int, error) {
	ctx, span, tenantID, err := s.begin(ctx, "ProcessTaskReminders")
	defer span.End()
	if err != nil {
		return 0, err
	}

	now := s.clock()
	due, err := s.repo.ListDueReminders(ctx, tenantID, now, now.Add(ReminderWindow))
	if err != nil {
		s.fail(ctx, span, "ProcessTaskReminders", tenantID, err)
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	processed := 0
	var touched, assignees []string
	for _, task := range due {
		flipped, err := s.repo.MarkReminderSent(ctx, tenantID, task.ID, now)
		if err != nil {
			s.fail(ctx, span, "ProcessTaskReminders", tenantID, err)
			continue
		}
		if !flipped {
			// Another sweep got there first.
			continue
		}
		processed++
		touched = append(touched, task.ID)
		assignees = append(assignees, task.Assignee())

		task.ReminderSent = true
		if err := s.publisher.Publish(ctx, domain.NewReminder(task, now)); err != nil {
			telemetry.RemindersPublishedTotal.WithLabelValues("error").Inc()
			s.logger.Error("reminder publish failed",
				slog.String("tenant_id", tenantID),
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		telemetry.RemindersPublishedTotal.WithLabelValues("ok").Inc()
	}

	if processed > 0 {
		s.invalidate(ctx, tenantID, touched, assignees...)
	}
	telemetry.SweepTasksTotal.WithLabelValues("reminders").Add(float64(processed))
	span.SetAttributes(attribute.Int("reminders.processed", processed))
	return processed, nil
}

// MarkOverdueTasks moves every pending task of the tenant whose due date
// has passed to overdue and returns how many moved. Tasks in progress are
// left alone.
func (s *Service) MarkOverdueTasks(ctx context.Context) (int, error) {
	ctx, span, tenantID, err := s.begin(ctx, "MarkOverdueTasks")
	defer span.End()
	if err != nil {
		return 0, err
	}

	ids, err := s.repo.MarkOverdue(ctx, tenantID, s.clock())
	if err != nil {
		s.fail(ctx, span, "MarkOverdueTasks", tenantID, err)
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	if len(ids) > 0 {
		// Assignees are unknown here; their upcoming views expire within UpcomingTTL.
		s.invalidate(ctx, tenantID, ids)
	}
	telemetry.SweepTasksTotal.WithLabelValues("overdue").Add(float64(len(ids)))
	span.SetAttributes(attribute.Int("tasks.marked_overdue", len(ids)))
	return len(ids), nil
}
