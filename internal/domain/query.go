package domain

import "time"

// SortField names a column tasks can be ordered by.
type SortField string

const (
	SortByDueDate   SortField = "due_date"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
	SortByPriority  SortField = "priority"
	SortByStatus    SortField = "status"
	SortByTitle     SortField = "title"
)

// Valid reports whether f is a sortable column.
func (f SortField) Valid() bool {
	switch f {
	case SortByDueDate, SortByCreatedAt, SortByUpdatedAt, SortByPriority, SortByStatus, SortByTitle:
		return true
	}
	return false
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TaskQuery selects a page of tasks. Every set filter narrows the result
// (AND); Tags matches tasks carrying any of the listed tags.
type TaskQuery struct {
	Statuses           []Status   `json:"statuses,omitempty"`
	Priorities         []Priority `json:"priorities,omitempty"`
	AssignedTo         string     `json:"assigned_to,omitempty"`
	PatientID          string     `json:"patient_id,omitempty"`
	CareProfessionalID string     `json:"care_professional_id,omitempty"`
	Category           string     `json:"category,omitempty"`
	ParentTaskID       string     `json:"parent_task_id,omitempty"`
	DueFrom            *time.Time `json:"due_from,omitempty"`
	DueTo              *time.Time `json:"due_to,omitempty"`
	DueBefore          *time.Time `json:"due_before,omitempty"` // exclusive
	Search             string     `json:"search,omitempty"`
	Tags               []string   `json:"tags,omitempty"`

	SortBy    SortField `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
	Page      int       `json:"page,omitempty"`
	PageSize  int       `json:"page_size,omitempty"`
}

// Normalize fills paging and sorting defaults and clamps the page size.
func (q *TaskQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
	if q.DueFrom != nil {
		q.DueFrom = utcPtr(q.DueFrom)
	}
	if q.DueTo != nil {
		q.DueTo = utcPtr(q.DueTo)
	}
	if q.DueBefore != nil {
		q.DueBefore = utcPtr(q.DueBefore)
	}
}

// Validate rejects unknown enum values and sort columns.
func (q *TaskQuery) Validate() error {
	for _, s := range q.Statuses {
		if !s.Valid() {
			return &ValidationError{Field: "status", Reason: "unknown status " + string(s)}
		}
	}
	for _, p := range q.Priorities {
		if !p.Valid() {
			return &ValidationError{Field: "priority", Reason: "unknown priority " + string(p)}
		}
	}
	if q.SortBy != "" && !q.SortBy.Valid() {
		return &ValidationError{Field: "sort_by", Reason: "cannot sort by " + string(q.SortBy)}
	}
	if q.SortOrder != "" && q.SortOrder != SortAsc && q.SortOrder != SortDesc {
		return &ValidationError{Field: "sort_order", Reason: "must be asc or desc"}
	}
	return nil
}

// Offset is the number of rows skipped before the current page.
func (q *TaskQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// TaskPage is one page of a task listing plus the unpaged total.
type TaskPage struct {
	Tasks []*Task `json:"tasks"`
	Total int64   `json:"total"`
}

// EmptyPage is returned by read paths that degrade on failure.
func EmptyPage() *TaskPage {
	return &TaskPage{Tasks: []*Task{}, Total: 0}
}
