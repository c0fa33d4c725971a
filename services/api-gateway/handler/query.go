package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// parseTaskQuery reads GET /tasks query parameters. status, priority and
// tags accept repeated parameters, comma-separated lists, or both. Dates
// are RFC 3339.
func parseTaskQuery(v url.Values) (domain.TaskQuery, error) {
	q := domain.TaskQuery{
		AssignedTo:         v.Get("assigned_to"),
		PatientID:          v.Get("patient_id"),
		CareProfessionalID: v.Get("care_professional_id"),
		Category:           v.Get("category"),
		ParentTaskID:       v.Get("parent_task_id"),
		Search:             strings.TrimSpace(v.Get("search")),
		Tags:               list(v, "tags"),
		SortBy:             domain.SortField(v.Get("sort_by")),
		SortOrder:          domain.SortOrder(strings.ToLower(v.Get("sort_order"))),
	}
	for _, s := range list(v, "status") {
		q.Statuses = append(q.Statuses, domain.Status(s))
	}
	for _, p := range list(v, "priority") {
		q.Priorities = append(q.Priorities, domain.Priority(p))
	}

	var err error
	if q.DueFrom, err = timeParam(v, "due_from"); err != nil {
		return q, err
	}
	if q.DueTo, err = timeParam(v, "due_to"); err != nil {
		return q, err
	}
	if q.Page, err = intParam(v, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(v, "page_size"); err != nil {
		return q, err
	}
	return q, nil
}

func list(v url.Values, key string) []string {
	var out []string
	for _, raw := range v[key] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func timeParam(v url.Values, key string) (*time.Time, error) {
	raw := v.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &domain.ValidationError{Field: key, Reason: "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

func intParam(v url.Values, key string) (int, error) {
	raw := v.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{Field: key, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
