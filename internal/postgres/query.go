package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

const taskColumns = `id, tenant_id, title, description, category, status, priority,
	due_date, completion_date, reminder_time, reminder_sent,
	assigned_to, assigned_by, patient_id, care_professional_id,
	related_entity_type, related_entity_id, parent_task_id,
	recurrence, recurrence_config, tags, created_at, updated_at, deleted_at`

// sortExpressions whitelists the ORDER BY expressions. Nothing from the
// request is ever spliced into SQL text except through this map.
var sortExpressions = map[domain.SortField]string{
	domain.SortByDueDate:   "due_date",
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
	domain.SortByPriority:  "CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
	domain.SortByStatus:    "status",
	domain.SortByTitle:     "title",
}

// predicates accumulates AND-ed conditions with $n placeholders.
type predicates struct {
	conds []string
	args  []any
}

// add appends a condition. format refers to the new placeholder as %[1]d,
// which lets one argument appear twice.
func (p *predicates) add(format string, arg any) {
	p.args = append(p.args, arg)
	p.conds = append(p.conds, fmt.Sprintf(format, len(p.args)))
}

func (p *predicates) where() string {
	return "WHERE " + strings.Join(p.conds, " AND ")
}

// scoped starts a predicate list with the tenant and soft-delete filters
// every statement carries.
func scoped(tenantID string) *predicates {
	p := &predicates{conds: []string{"deleted_at IS NULL"}}
	p.add("tenant_id = $%[1]d", tenantID)
	return p
}

// buildListQuery returns the page query, the count query and their shared
// arguments. The page query appends LIMIT and OFFSET as the last two args.
func buildListQuery(tenantID string, q domain.TaskQuery) (selectSQL, countSQL string, args []any) {
	p := scoped(tenantID)

	if len(q.Statuses) > 0 {
		p.add("status = ANY($%[1]d)", statusStrings(q.Statuses))
	}
	if len(q.Priorities) > 0 {
		p.add("priority = ANY($%[1]d)", priorityStrings(q.Priorities))
	}
	if q.AssignedTo != "" {
		p.add("assigned_to = $%[1]d", q.AssignedTo)
	}
	if q.PatientID != "" {
		p.add("patient_id = $%[1]d", q.PatientID)
	}
	if q.CareProfessionalID != "" {
		p.add("care_professional_id = $%[1]d", q.CareProfessionalID)
	}
	if q.Category != "" {
		p.add("category = $%[1]d", q.Category)
	}
	if q.ParentTaskID != "" {
		p.add("parent_task_id = $%[1]d", q.ParentTaskID)
	}
	if q.DueFrom != nil {
		p.add("due_date >= $%[1]d", *q.DueFrom)
	}
	if q.DueTo != nil {
		p.add("due_date <= $%[1]d", *q.DueTo)
	}
	if q.DueBefore != nil {
		p.add("due_date < $%[1]d", *q.DueBefore)
	}
	if q.Search != "" {
		p.add(`(title ILIKE $%[1]d ESCAPE '\' OR description ILIKE $%[1]d ESCAPE '\')`, likePattern(q.Search))
	}
	if len(q.Tags) > 0 {
		p.add("tags && $%[1]d", q.Tags)
	}

	where := p.where()
	countSQL = "SELECT COUNT(*) FROM tasks " + where

	order := "DESC"
	if q.SortOrder == domain.SortAsc {
		order = "ASC"
	}
	expr, ok := sortExpressions[q.SortBy]
	if !ok {
		expr = sortExpressions[domain.SortByCreatedAt]
	}

	n := len(p.args)
	selectSQL = fmt.Sprintf("SELECT %s FROM tasks %s ORDER BY %s %s NULLS LAST, id ASC LIMIT $%d OFFSET $%d",
		taskColumns, where, expr, order, n+1, n+2)
	return selectSQL, countSQL, p.args
}

// buildUpdate renders a partial UPDATE writing only the set fields of u.
// updated_at is always written.
func buildUpdate(tenantID, id string, u domain.TaskUpdate, now time.Time) (string, []any, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Title.Set {
		set("title", u.Title.Value)
	}
	if u.Description.Set {
		set("description", u.Description.Value)
	}
	if u.Category.Set {
		set("category", u.Category.Value)
	}
	if u.Status.Set {
		set("status", string(u.Status.Value))
	}
	if u.Priority.Set {
		set("priority", string(u.Priority.Value))
	}
	if u.DueDate.Set {
		set("due_date", u.DueDate.Value)
	}
	if u.CompletionDate.Set {
		set("completion_date", u.CompletionDate.Value)
	}
	if u.ReminderTime.Set {
		set("reminder_time", u.ReminderTime.Value)
	}
	if u.ReminderSent.Set {
		set("reminder_sent", u.ReminderSent.Value)
	}
	if u.AssignedTo.Set {
		set("assigned_to", u.AssignedTo.Value)
	}
	if u.AssignedBy.Set {
		set("assigned_by", u.AssignedBy.Value)
	}
	if u.PatientID.Set {
		set("patient_id", u.PatientID.Value)
	}
	if u.CareProfessionalID.Set {
		set("care_professional_id", u.CareProfessionalID.Value)
	}
	if u.RelatedEntityType.Set {
		set("related_entity_type", u.RelatedEntityType.Value)
	}
	if u.RelatedEntityID.Set {
		set("related_entity_id", u.RelatedEntityID.Value)
	}
	if u.Recurrence.Set {
		set("recurrence", string(u.Recurrence.Value))
	}
	if u.RecurrenceConfig.Set {
		cfg, err := configJSON(u.RecurrenceConfig.Value)
		if err != nil {
			return "", nil, err
		}
		set("recurrence_config", cfg)
	}
	if u.Tags.Set {
		set("tags", nonNilTags(u.Tags.Value))
	}
	set("updated_at", now)

	args = append(args, tenantID, id)
	sql := fmt.Sprintf("UPDATE tasks SET %s WHERE tenant_id = $%d AND id = $%d AND deleted_at IS NULL RETURNING %s",
		strings.Join(sets, ", "), len(args)-1, len(args), taskColumns)
	return sql, args, nil
}

// likePattern wraps s for a substring ILIKE, escaping the wildcards it
// contains so they match literally.
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

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// configJSON encodes a recurrence config for a JSONB column; nil stays NULL.
func configJSON(cfg *domain.RecurrenceConfig) (any, error) {
	if cfg == nil {
		return nil, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal recurrence config: %w", err)
	}
	return raw, nil
}
