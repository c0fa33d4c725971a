package handlers

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// LogHandler writes one structured log line per reminder. It is the
// default channel for development setups without SMTP or a webhook.
type LogHandler struct {
	logger *slog.Logger
}

func NewLogHandler(logger *slog.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Channel() string { return "log" }

func (h *LogHandler) Handle(ctx context.Context, r domain.Reminder) error {
	attrs := []slog.Attr{
		slog.String("task_id", r.TaskID),
		slog.String("tenant_id", r.TenantID),
		slog.String("title", r.Title),
		slog.String("priority", string(r.Priority)),
		slog.Time("reminder_time", r.ReminderTime),
	}
	if r.AssignedTo != nil {
		attrs = append(attrs, slog.String("assigned_to", *r.AssignedTo))
	}
	if r.DueDate != nil {
		attrs = append(attrs, slog.Time("due_date", *r.DueDate))
	}
	h.logger.LogAttrs(ctx, slog.LevelInfo, "task reminder", attrs...)
	return nil
}
