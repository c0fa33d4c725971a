package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/store"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the store.TaskRepository interface.
func NewRepository(pool *pgxpool.Pool) store.TaskRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *repository) Create(ctx context.Context, task *domain.Task) error {
	cfg, err := configJSON(task.RecurrenceConfig)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tasks
			(id, tenant_id, title, description, category, status, priority,
			 due_date, completion_date, reminder_time, reminder_sent,
			 assigned_to, assigned_by, patient_id, care_professional_id,
			 related_entity_type, related_entity_id, parent_task_id,
			 recurrence, recurrence_config, tags, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			 $16, $17, $18, $19, $20, $21, $22, $23)
	`,
		task.ID, task.TenantID, task.Title, task.Description, task.Category,
		string(task.Status), string(task.Priority),
		task.DueDate, task.CompletionDate, task.ReminderTime, task.ReminderSent,
		task.AssignedTo, task.AssignedBy, task.PatientID, task.CareProfessionalID,
		task.RelatedEntityType, task.RelatedEntityID, task.ParentTaskID,
		string(task.Recurrence), cfg, nonNilTags(task.Tags),
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, tenantID, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
	`, tenantID, id)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

func (r *repository) Update(ctx context.Context, tenantID, id string, patch domain.TaskUpdate, now time.Time) (*domain.Task, error) {
	sql, args, err := buildUpdate(tenantID, id, patch, now)
	if err != nil {
		return nil, err
	}
	task, err := scanTask(r.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	return task, nil
}

func (r *repository) SoftDelete(ctx context.Context, tenantID, id string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET deleted_at = $1, updated_at = $1
		WHERE tenant_id = $2 AND id = $3 AND deleted_at IS NULL
	`, now, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (r *repository) List(ctx context.Context, tenantID string, q domain.TaskQuery) (*domain.TaskPage, error) {
	selectSQL, countSQL, args := buildListQuery(tenantID, q)

	var total int64
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	if total == 0 {
		return domain.EmptyPage(), nil
	}

	tasks, err := r.query(ctx, selectSQL, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return &domain.TaskPage{Tasks: tasks, Total: total}, nil
}

func (r *repository) FindSuccessor(ctx context.Context, tenantID, parentID string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE tenant_id = $1 AND parent_task_id = $2 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1
	`, tenantID, parentID)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find successor of %s: %w", parentID, err)
	}
	return task, nil
}

func (r *repository) ListDueReminders(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Task, error) {
	tasks, err := r.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE tenant_id = $1
		  AND deleted_at IS NULL
		  AND reminder_sent = FALSE
		  AND status NOT IN ('completed', 'cancelled')
		  AND reminder_time BETWEEN $2 AND $3
		ORDER BY reminder_time ASC
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return tasks, nil
}

func (r *repository) MarkReminderSent(ctx context.Context, tenantID, id string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET reminder_sent = TRUE, updated_at = $1
		WHERE tenant_id = $2 AND id = $3 AND deleted_at IS NULL AND reminder_sent = FALSE
	`, now, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent for %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) MarkOverdue(ctx context.Context, tenantID string, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE tasks
		SET status = 'overdue', updated_at = $1
		WHERE tenant_id = $2
		  AND deleted_at IS NULL
		  AND status = 'pending'
		  AND due_date < $1
		RETURNING id
	`, now, tenantID)
	if err != nil {
		return nil, fmt.Errorf("mark overdue: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect overdue ids: %w", err)
	}
	return ids, nil
}

// Statistics computes every counter in one pass with aggregate FILTERs.
func (r *repository) Statistics(ctx context.Context, tenantID string, now time.Time) (*domain.Statistics, error) {
	dayStart, dayEnd := store.DayBounds(now)

	var s domain.Statistics
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'overdue'),
			COUNT(*) FILTER (WHERE priority IN ('high', 'urgent') AND status NOT IN ('completed', 'cancelled')),
			COUNT(*) FILTER (WHERE due_date >= $2 AND due_date < $3)
		FROM tasks
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`, tenantID, dayStart, dayEnd).Scan(
		&s.Total, &s.Pending, &s.Completed, &s.Overdue, &s.HighPriority, &s.DueToday,
	)
	if err != nil {
		return nil, fmt.Errorf("task statistics: %w", err)
	}
	s.CompletionRate = domain.CompletionRate(s.Completed, s.Total)
	return &s, nil
}

func (r *repository) Categories(ctx context.Context, tenantID string) ([]domain.CategoryCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category, COUNT(*) AS n
		FROM tasks
		WHERE tenant_id = $1 AND deleted_at IS NULL
		GROUP BY category
		ORDER BY n DESC, category ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("task categories: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CategoryCount, error) {
		var c domain.CategoryCount
		err := row.Scan(&c.Category, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return counts, nil
}

func (r *repository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tenant_id FROM tasks WHERE deleted_at IS NULL ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect tenants: %w", err)
	}
	return tenants, nil
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// scanTask reads a task row from any pgx row type. pgx.ErrNoRows is
// returned unwrapped so callers can translate it.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var (
		task                         domain.Task
		status, priority, recurrence string
		config                       []byte
	)
	err := row.Scan(
		&task.ID, &task.TenantID, &task.Title, &task.Description, &task.Category,
		&status, &priority,
		&task.DueDate, &task.CompletionDate, &task.ReminderTime, &task.ReminderSent,
		&task.AssignedTo, &task.AssignedBy, &task.PatientID, &task.CareProfessionalID,
		&task.RelatedEntityType, &task.RelatedEntityID, &task.ParentTaskID,
		&recurrence, &config, &task.Tags,
		&task.CreatedAt, &task.UpdatedAt, &task.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Status = domain.Status(status)
	task.Priority = domain.Priority(priority)
	task.Recurrence = domain.Recurrence(recurrence)
	if len(config) > 0 {
		var cfg domain.RecurrenceConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("decode recurrence config of %s: %w", task.ID, err)
		}
		task.RecurrenceConfig = &cfg
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	inUTC(&task)
	return &task, nil
}

// inUTC converts the timestamps pgx decoded in the session zone.
func inUTC(t *domain.Task) {
	for _, p := range []**time.Time{&t.DueDate, &t.CompletionDate, &t.ReminderTime, &t.DeletedAt} {
		if *p != nil {
			u := (**p).UTC()
			*p = &u
		}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
}
