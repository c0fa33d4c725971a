// Package store defines the persistence contract for tasks. Every method is
// scoped to one tenant and never returns soft-deleted rows.
package store

import (
	"context"
	"time"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// TaskRepository abstracts all database access for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	// GetByID returns *domain.TaskNotFoundError for missing or deleted rows.
	GetByID(ctx context.Context, tenantID, id string) (*domain.Task, error)
	// Update writes only the fields set in patch plus updated_at and returns
	// the stored row.
	Update(ctx context.Context, tenantID, id string, patch domain.TaskUpdate, now time.Time) (*domain.Task, error)
	// SoftDelete stamps deleted_at. Missing or already deleted rows yield
	// *domain.TaskNotFoundError.
	SoftDelete(ctx context.Context, tenantID, id string, now time.Time) error
	// List expects a normalized query.
	List(ctx context.Context, tenantID string, q domain.TaskQuery) (*domain.TaskPage, error)
	// FindSuccessor returns the live task generated from parentID, or nil.
	FindSuccessor(ctx context.Context, tenantID, parentID string) (*domain.Task, error)
	// ListDueReminders returns non-terminal tasks with reminder_sent = false
	// and reminder_time in [from, to].
	ListDueReminders(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Task, error)
	// MarkReminderSent flips reminder_sent only if it is still false and
	// reports whether this call flipped it.
	MarkReminderSent(ctx context.Context, tenantID, id string, now time.Time) (bool, error)
	// MarkOverdue moves pending tasks due before now to overdue and returns
	// their ids.
	MarkOverdue(ctx context.Context, tenantID string, now time.Time) ([]string, error)
	Statistics(ctx context.Context, tenantID string, now time.Time) (*domain.Statistics, error)
	// Categories returns per-category counts, largest first.
	Categories(ctx context.Context, tenantID string) ([]domain.CategoryCount, error)
	// ListTenants returns every tenant owning at least one live task.
	ListTenants(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// DayBounds returns the UTC start of now's day and the start of the next.
func DayBounds(now time.Time) (start, end time.Time) {
	u := now.UTC()
	start = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
