package domain

import (
	"math"
	"slices"
	"time"
)

// Status represents the lifecycle states a task can be in.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusOverdue    Status = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusOverdue:
		return true
	}
	return false
}

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions lists the allowed next states for every non-terminal status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCompleted, StatusCancelled, StatusOverdue},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusOverdue:    {StatusInProgress, StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether a task in status s may move to next.
// Writing the current status again is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	return slices.Contains(transitions[s], next)
}

// Priority ranks how urgently a task needs attention.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DefaultCategory is assigned to tasks created without a category.
const DefaultCategory = "general"

// Task is the core domain entity: a unit of care work owned by one tenant.
type Task struct {
	ID                 string            `json:"id"`
	TenantID           string            `json:"tenant_id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Category           string            `json:"category"`
	Status             Status            `json:"status"`
	Priority           Priority          `json:"priority"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	CompletionDate     *time.Time        `json:"completion_date,omitempty"`
	ReminderTime       *time.Time        `json:"reminder_time,omitempty"`
	ReminderSent       bool              `json:"reminder_sent"`
	AssignedTo         *string           `json:"assigned_to,omitempty"`
	AssignedBy         *string           `json:"assigned_by,omitempty"`
	PatientID          *string           `json:"patient_id,omitempty"`
	CareProfessionalID *string           `json:"care_professional_id,omitempty"`
	RelatedEntityType  *string           `json:"related_entity_type,omitempty"`
	RelatedEntityID    *string           `json:"related_entity_id,omitempty"`
	ParentTaskID       *string           `json:"parent_task_id,omitempty"`
	Recurrence         Recurrence        `json:"recurrence"`
	RecurrenceConfig   *RecurrenceConfig `json:"recurrence_config,omitempty"`
	Tags               []string          `json:"tags"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	DeletedAt          *time.Time        `json:"deleted_at,omitempty"`
}

// HasTag reports whether tag is in the task's tag set.
func (t *Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// IsRecurring reports whether completing the task should spawn a successor.
func (t *Task) IsRecurring() bool {
	return t.Recurrence != "" && t.Recurrence != RecurrenceNone
}

// Assignee returns the assigned user id, or "" when unassigned.
func (t *Task) Assignee() string {
	if t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}

// NewTask is the input accepted by task creation. Zero values are replaced
// by defaults when the task is built.
type NewTask struct {
	ID                 string            `json:"id,omitempty" validate:"omitempty,max=64"`
	Title              string            `json:"title" validate:"required,max=255"`
	Description        string            `json:"description,omitempty" validate:"max=10000"`
	Category           string            `json:"category,omitempty" validate:"max=100"`
	Status             Status            `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress completed cancelled overdue"`
	Priority           Priority          `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	ReminderTime       *time.Time        `json:"reminder_time,omitempty"`
	AssignedTo         *string           `json:"assigned_to,omitempty" validate:"omitempty,max=128"`
	AssignedBy         *string           `json:"assigned_by,omitempty" validate:"omitempty,max=128"`
	PatientID          *string           `json:"patient_id,omitempty" validate:"omitempty,max=128"`
	CareProfessionalID *string           `json:"care_professional_id,omitempty" validate:"omitempty,max=128"`
	RelatedEntityType  *string           `json:"related_entity_type,omitempty" validate:"omitempty,max=64"`
	RelatedEntityID    *string           `json:"related_entity_id,omitempty" validate:"omitempty,max=128"`
	ParentTaskID       *string           `json:"parent_task_id,omitempty" validate:"omitempty,max=64"`
	Recurrence         Recurrence        `json:"recurrence,omitempty" validate:"omitempty,oneof=none daily weekly biweekly monthly custom"`
	RecurrenceConfig   *RecurrenceConfig `json:"recurrence_config,omitempty"`
	Tags               []string          `json:"tags,omitempty" validate:"omitempty,dive,required,max=64"`
}

// Validate checks the struct tags of n and returns a *ValidationError for
// the first failing field.
func (n NewTask) Validate() error {
	return validateStruct(n)
}

// Build turns the input into a Task owned by tenantID, applying defaults.
// completion_date is stamped when the task is created already completed.
func (n NewTask) Build(tenantID, id string, now time.Time) *Task {
	task := &Task{
		ID:                 id,
		TenantID:           tenantID,
		Title:              n.Title,
		Description:        n.Description,
		Category:           n.Category,
		Status:             n.Status,
		Priority:           n.Priority,
		DueDate:            utcPtr(n.DueDate),
		ReminderTime:       utcPtr(n.ReminderTime),
		AssignedTo:         n.AssignedTo,
		AssignedBy:         n.AssignedBy,
		PatientID:          n.PatientID,
		CareProfessionalID: n.CareProfessionalID,
		RelatedEntityType:  n.RelatedEntityType,
		RelatedEntityID:    n.RelatedEntityID,
		ParentTaskID:       n.ParentTaskID,
		Recurrence:         n.Recurrence,
		RecurrenceConfig:   n.RecurrenceConfig,
		Tags:               dedupe(n.Tags),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.Category == "" {
		task.Category = DefaultCategory
	}
	if task.Recurrence == "" {
		task.Recurrence = RecurrenceNone
	}
	if task.Status == StatusCompleted {
		completed := now
		task.CompletionDate = &completed
	}
	return task
}

// Statistics aggregates task counts for one tenant.
type Statistics struct {
	Total          int64 `json:"total"`
	Pending        int64 `json:"pending"`
	Completed      int64 `json:"completed"`
	Overdue        int64 `json:"overdue"`
	HighPriority   int64 `json:"high_priority"`
	DueToday       int64 `json:"due_today"`
	CompletionRate int   `json:"completion_rate"`
}

// CompletionRate returns round(completed/total*100), or 0 for an empty set.
func CompletionRate(completed, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// CategoryCount is one row of the per-category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// Reminder is the event emitted when a task's reminder window opens.
type Reminder struct {
	TaskID       string     `json:"task_id"`
	TenantID     string     `json:"tenant_id"`
	Title        string     `json:"title"`
	Priority     Priority   `json:"priority"`
	AssignedTo   *string    `json:"assigned_to,omitempty"`
	PatientID    *string    `json:"patient_id,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReminderTime time.Time  `json:"reminder_time"`
	SentAt       time.Time  `json:"sent_at"`
}

// NewReminder builds the reminder event for t. t.ReminderTime must be set.
func NewReminder(t *Task, sentAt time.Time) Reminder {
	r := Reminder{
		TaskID:     t.ID,
		TenantID:   t.TenantID,
		Title:      t.Title,
		Priority:   t.Priority,
		AssignedTo: t.AssignedTo,
		PatientID:  t.PatientID,
		DueDate:    t.DueDate,
		SentAt:     sentAt,
	}
	if t.ReminderTime != nil {
		r.ReminderTime = *t.ReminderTime
	}
	return r
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// dedupe drops repeated tags, keeping first-seen order. Never returns nil.
func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}
