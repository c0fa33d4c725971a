package taskservice

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-care-tasks/internal/cache"
	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

var openStatuses = []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusOverdue}

// GetTaskStatistics returns the tenant's task counts. Store failures
// degrade to zeroed statistics.
func (s *Service) GetTaskStatistics(ctx context.Context) (*domain.Statistics, error) {
	ctx, span, tenantID, err := s.begin(ctx, "GetTaskStatistics")
	defer span.End()
	if err != nil {
		return nil, err
	}

	stats, err := readThrough(ctx, s, "statistics", cache.KeysFor(tenantID).Statistics(), cache.StatisticsTTL,
		func(ctx context.Context) (*domain.Statistics, error) {
			return s.repo.Statistics(ctx, tenantID, s.clock())
		})
	if err != nil {
		s.fail(ctx, span, "GetTaskStatistics", tenantID, err)
		return &domain.Statistics{}, nil
	}
	return stats, nil
}

// GetTaskCategories returns per-category task counts, largest first.
// Store failures degrade to an empty list.
func (s *Service) GetTaskCategories(ctx context.Context) ([]domain.CategoryCount, error) {
	ctx, span, tenantID, err := s.begin(ctx, "GetTaskCategories")
	defer span.End()
	if err != nil {
		return nil, err
	}

	cats, err := readThrough(ctx, s, "categories", cache.KeysFor(tenantID).Categories(), cache.CategoriesTTL,
		func(ctx context.Context) ([]domain.CategoryCount, error) {
			return s.repo.Categories(ctx, tenantID)
		})
	if err != nil {
		s.fail(ctx, span, "GetTaskCategories", tenantID, err)
		return []domain.CategoryCount{}, nil
	}
	return cats, nil
}

// GetOverdueTasks returns open tasks whose due date has passed, oldest
// first, whether or not the overdue sweep has reached them yet.
func (s *Service) GetOverdueTasks(ctx context.Context) ([]*domain.Task, error) {
	ctx, span, tenantID, err := s.begin(ctx, "GetOverdueTasks")
	defer span.End()
	if err != nil {
		return nil, err
	}

	now := s.clock()
	q := domain.TaskQuery{
		Statuses:  openStatuses,
		DueBefore: &now,
		SortBy:    domain.SortByDueDate,
		SortOrder: domain.SortAsc,
		PageSize:  domain.MaxPageSize,
	}
	q.Normalize()

	tasks, err := readThrough(ctx, s, "overdue", cache.KeysFor(tenantID).Overdue(), cache.ListTTL,
		func(ctx context.Context) ([]*domain.Task, error) {
			page, err := s.repo.List(ctx, tenantID, q)
			if err != nil {
				return nil, err
			}
			return page.Tasks, nil
		})
	if err != nil {
		s.fail(ctx, span, "GetOverdueTasks", tenantID, err)
		return []*domain.Task{}, nil
	}
	return tasks, nil
}

// GetUpcomingTasks returns open tasks due within the next days days,
// soonest first, optionally narrowed to one assignee.
func (s *Service) GetUpcomingTasks(ctx context.Context, days int, assignee string) ([]*domain.Task, error) {
	ctx, span, tenantID, err := s.begin(ctx, "GetUpcomingTasks")
	defer span.End()
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultUpcomingDays
	}
	span.SetAttributes(attribute.Int("upcoming.days", days))

	now := s.clock()
	until := now.AddDate(0, 0, days)
	q := domain.TaskQuery{
		Statuses:   openStatuses,
		AssignedTo: assignee,
		DueFrom:    &now,
		DueTo:      &until,
		SortBy:     domain.SortByDueDate,
		SortOrder:  domain.SortAsc,
		PageSize:   domain.MaxPageSize,
	}
	q.Normalize()

	tasks, err := readThrough(ctx, s, "upcoming", cache.KeysFor(tenantID).Upcoming(assignee, days), cache.UpcomingTTL,
		func(ctx context.Context) ([]*domain.Task, error) {
			page, err := s.repo.List(ctx, tenantID, q)
			if err != nil {
				return nil, err
			}
			return page.Tasks, nil
		})
	if err != nil {
		s.fail(ctx, span, "GetUpcomingTasks", tenantID, err)
		return []*domain.Task{}, nil
	}
	return tasks, nil
}
