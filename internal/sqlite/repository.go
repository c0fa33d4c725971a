package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/store"
)

var sortExpressions = map[domain.SortField]string{
	domain.SortByDueDate:   "due_date",
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
	domain.SortByPriority:  "CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
	domain.SortByStatus:    "status",
	domain.SortByTitle:     "title",
}

var terminalStatuses = []string{string(domain.StatusCompleted), string(domain.StatusCancelled)}

type repository struct {
	db *gorm.DB
}

// NewRepository wraps a gorm DB with the store.TaskRepository interface.
func NewRepository(db *gorm.DB) store.TaskRepository {
	return &repository{db: db}
}

// live scopes a query to one tenant's non-deleted rows.
func (r *repository) live(ctx context.Context, tenantID string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&taskRow{}).
		Where("tenant_id = ? AND deleted_at IS NULL", tenantID)
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *repository) Create(ctx context.Context, task *domain.Task) error {
	row, err := fromDomain(task)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, tenantID, id string) (*domain.Task, error) {
	var row taskRow
	err := r.live(ctx, tenantID).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return row.toDomain()
}

func (r *repository) Update(ctx context.Context, tenantID, id string, patch domain.TaskUpdate, now time.Time) (*domain.Task, error) {
	values, err := updateValues(patch, now)
	if err != nil {
		return nil, err
	}
	res := r.live(ctx, tenantID).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return nil, fmt.Errorf("update task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return r.GetByID(ctx, tenantID, id)
}

func (r *repository) SoftDelete(ctx context.Context, tenantID, id string, now time.Time) error {
	res := r.live(ctx, tenantID).Where("id = ?", id).
		Updates(map[string]any{"deleted_at": now, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("delete task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (r *repository) List(ctx context.Context, tenantID string, q domain.TaskQuery) (*domain.TaskPage, error) {
	// A new session lets the count and the page query share the filters.
	tx := applyFilters(r.live(ctx, tenantID), q).Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	if total == 0 {
		return domain.EmptyPage(), nil
	}

	var rows []taskRow
	err := tx.Order(orderClause(q)).Limit(q.PageSize).Offset(q.Offset()).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := toDomainAll(rows)
	if err != nil {
		return nil, err
	}
	return &domain.TaskPage{Tasks: tasks, Total: total}, nil
}

func (r *repository) FindSuccessor(ctx context.Context, tenantID, parentID string) (*domain.Task, error) {
	var row taskRow
	err := r.live(ctx, tenantID).Where("parent_task_id = ?", parentID).Order("created_at ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find successor of %s: %w", parentID, err)
	}
	return row.toDomain()
}

func (r *repository) ListDueReminders(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Task, error) {
	var rows []taskRow
	err := r.live(ctx, tenantID).
		Where("reminder_sent = ?", false).
		Where("status NOT IN ?", terminalStatuses).
		Where("reminder_time >= ? AND reminder_time <= ?", from, to).
		Order("reminder_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return toDomainAll(rows)
}

func (r *repository) MarkReminderSent(ctx context.Context, tenantID, id string, now time.Time) (bool, error) {
	res := r.live(ctx, tenantID).Where("id = ? AND reminder_sent = ?", id, false).
		Updates(map[string]any{"reminder_sent": true, "updated_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("mark reminder sent for %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkOverdue(ctx context.Context, tenantID string, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := func() *gorm.DB {
			return tx.Model(&taskRow{}).
				Where("tenant_id = ? AND deleted_at IS NULL", tenantID).
				Where("status = ? AND due_date < ?", string(domain.StatusPending), now)
		}
		if err := scope().Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return scope().Where("id IN ?", ids).
			Updates(map[string]any{"status": string(domain.StatusOverdue), "updated_at": now}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("mark overdue: %w", err)
	}
	return ids, nil
}

// Statistics runs one COUNT per counter inside a read transaction so the
// numbers come from one snapshot.
func (r *repository) Statistics(ctx context.Context, tenantID string, now time.Time) (*domain.Statistics, error) {
	dayStart, dayEnd := store.DayBounds(now)
	var s domain.Statistics

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := func() *gorm.DB {
			return tx.Model(&taskRow{}).Where("tenant_id = ? AND deleted_at IS NULL", tenantID)
		}
		counts := []struct {
			dst   *int64
			apply func(*gorm.DB) *gorm.DB
		}{
			{&s.Total, func(db *gorm.DB) *gorm.DB { return db }},
			{&s.Pending, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", string(domain.StatusPending)) }},
			{&s.Completed, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", string(domain.StatusCompleted)) }},
			{&s.Overdue, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", string(domain.StatusOverdue)) }},
			{&s.HighPriority, func(db *gorm.DB) *gorm.DB {
				return db.Where("priority IN ?", []string{string(domain.PriorityHigh), string(domain.PriorityUrgent)}).
					Where("status NOT IN ?", terminalStatuses)
			}},
			{&s.DueToday, func(db *gorm.DB) *gorm.DB { return db.Where("due_date >= ? AND due_date < ?", dayStart, dayEnd) }},
		}
		for _, c := range counts {
			if err := c.apply(base()).Count(c.dst).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("task statistics: %w", err)
	}
	s.CompletionRate = domain.CompletionRate(s.Completed, s.Total)
	return &s, nil
}

func (r *repository) Categories(ctx context.Context, tenantID string) ([]domain.CategoryCount, error) {
	counts := []domain.CategoryCount{}
	err := r.live(ctx, tenantID).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC, category ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("task categories: %w", err)
	}
	return counts, nil
}

func (r *repository) ListTenants(ctx context.Context) ([]string, error) {
	var tenants []string
	err := r.db.WithContext(ctx).Model(&taskRow{}).
		Where("deleted_at IS NULL").
		Distinct("tenant_id").
		Order("tenant_id").
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func applyFilters(tx *gorm.DB, q domain.TaskQuery) *gorm.DB {
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", statusStrings(q.Statuses))
	}
	if len(q.Priorities) > 0 {
		tx = tx.Where("priority IN ?", priorityStrings(q.Priorities))
	}
	if q.AssignedTo != "" {
		tx = tx.Where("assigned_to = ?", q.AssignedTo)
	}
	if q.PatientID != "" {
		tx = tx.Where("patient_id = ?", q.PatientID)
	}
	if q.CareProfessionalID != "" {
		tx = tx.Where("care_professional_id = ?", q.CareProfessionalID)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.ParentTaskID != "" {
		tx = tx.Where("parent_task_id = ?", q.ParentTaskID)
	}
	if q.DueFrom != nil {
		tx = tx.Where("due_date >= ?", *q.DueFrom)
	}
	if q.DueTo != nil {
		tx = tx.Where("due_date <= ?", *q.DueTo)
	}
	if q.DueBefore != nil {
		tx = tx.Where("due_date < ?", *q.DueBefore)
	}
	if q.Search != "" {
		pattern := likePattern(q.Search)
		tx = tx.Where(`(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if len(q.Tags) > 0 {
		tx = tx.Where("EXISTS (SELECT 1 FROM json_each(tasks.tags) WHERE json_each.value IN ?)", q.Tags)
	}
	return tx
}

func orderClause(q domain.TaskQuery) string {
	expr, ok := sortExpressions[q.SortBy]
	if !ok {
		expr = sortExpressions[domain.SortByCreatedAt]
	}
	order := "DESC"
	if q.SortOrder == domain.SortAsc {
		order = "ASC"
	}
	return fmt.Sprintf("%s %s NULLS LAST, id ASC", expr, order)
}

// updateValues maps the set fields of u to columns for gorm's Updates.
func updateValues(u domain.TaskUpdate, now time.Time) (map[string]any, error) {
	v := map[string]any{"updated_at": now}
	if u.Title.Set {
		v["title"] = u.Title.Value
	}
	if u.Description.Set {
		v["description"] = u.Description.Value
	}
	if u.Category.Set {
		v["category"] = u.Category.Value
	}
	if u.Status.Set {
		v["status"] = string(u.Status.Value)
	}
	if u.Priority.Set {
		v["priority"] = string(u.Priority.Value)
	}
	if u.DueDate.Set {
		v["due_date"] = u.DueDate.Value
	}
	if u.CompletionDate.Set {
		v["completion_date"] = u.CompletionDate.Value
	}
	if u.ReminderTime.Set {
		v["reminder_time"] = u.ReminderTime.Value
	}
	if u.ReminderSent.Set {
		v["reminder_sent"] = u.ReminderSent.Value
	}
	if u.AssignedTo.Set {
		v["assigned_to"] = u.AssignedTo.Value
	}
	if u.AssignedBy.Set {
		v["assigned_by"] = u.AssignedBy.Value
	}
	if u.PatientID.Set {
		v["patient_id"] = u.PatientID.Value
	}
	if u.CareProfessionalID.Set {
		v["care_professional_id"] = u.CareProfessionalID.Value
	}
	if u.RelatedEntityType.Set {
		v["related_entity_type"] = u.RelatedEntityType.Value
	}
	if u.RelatedEntityID.Set {
		v["related_entity_id"] = u.RelatedEntityID.Value
	}
	if u.Recurrence.Set {
		v["recurrence"] = string(u.Recurrence.Value)
	}
	if u.RecurrenceConfig.Set {
		cfg, err := encodeConfig(u.RecurrenceConfig.Value)
		if err != nil {
			return nil, err
		}
		v["recurrence_config"] = cfg
	}
	if u.Tags.Set {
		tags, err := encodeTags(u.Tags.Value)
		if err != nil {
			return nil, err
		}
		v["tags"] = tags
	}
	return v, nil
}

func toDomainAll(rows []taskRow) ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func statusStrings(in []domain.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(in []domain.Priority) []string {
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = string(p)
	}
	return out
}
