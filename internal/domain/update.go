package domain

import (
	"encoding/json"
	"time"
)

// Optional marks a patch field as present. A JSON null still counts as
// present and yields the zero value, which clears nullable columns.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// TaskUpdate is a partial update. Only fields with Set == true are written.
type TaskUpdate struct {
	Title              Optional[string]            `json:"title"`
	Description        Optional[string]            `json:"description"`
	Category           Optional[string]            `json:"category"`
	Status             Optional[Status]            `json:"status"`
	Priority           Optional[Priority]          `json:"priority"`
	DueDate            Optional[*time.Time]        `json:"due_date"`
	CompletionDate     Optional[*time.Time]        `json:"completion_date"`
	ReminderTime       Optional[*time.Time]        `json:"reminder_time"`
	ReminderSent       Optional[bool]              `json:"reminder_sent"`
	AssignedTo         Optional[*string]           `json:"assigned_to"`
	AssignedBy         Optional[*string]           `json:"assigned_by"`
	PatientID          Optional[*string]           `json:"patient_id"`
	CareProfessionalID Optional[*string]           `json:"care_professional_id"`
	RelatedEntityType  Optional[*string]           `json:"related_entity_type"`
	RelatedEntityID    Optional[*string]           `json:"related_entity_id"`
	Recurrence         Optional[Recurrence]        `json:"recurrence"`
	RecurrenceConfig   Optional[*RecurrenceConfig] `json:"recurrence_config"`
	Tags               Optional[[]string]          `json:"tags"`
}

// IsEmpty reports whether the update would write nothing but updated_at.
func (u *TaskUpdate) IsEmpty() bool {
	return !(u.Title.Set || u.Description.Set || u.Category.Set || u.Status.Set ||
		u.Priority.Set || u.DueDate.Set || u.CompletionDate.Set || u.ReminderTime.Set ||
		u.ReminderSent.Set || u.AssignedTo.Set || u.AssignedBy.Set || u.PatientID.Set ||
		u.CareProfessionalID.Set || u.RelatedEntityType.Set || u.RelatedEntityID.Set ||
		u.Recurrence.Set || u.RecurrenceConfig.Set || u.Tags.Set)
}

// Reschedules reports whether the update moves the task in time or changes
// its recurrence rule, either of which changes the next occurrence.
func (u *TaskUpdate) Reschedules() bool {
	return u.DueDate.Set || u.ReminderTime.Set || u.Recurrence.Set || u.RecurrenceConfig.Set
}

// Validate rejects values no column may hold.
func (u *TaskUpdate) Validate() error {
	if u.Title.Set && u.Title.Value == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if u.Category.Set && u.Category.Value == "" {
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if u.Status.Set && !u.Status.Value.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(u.Status.Value)}
	}
	if u.Priority.Set && !u.Priority.Value.Valid() {
		return &ValidationError{Field: "priority", Reason: "unknown priority " + string(u.Priority.Value)}
	}
	if u.Recurrence.Set && !u.Recurrence.Value.Valid() {
		return &ValidationError{Field: "recurrence", Reason: "unknown recurrence " + string(u.Recurrence.Value)}
	}
	return nil
}

// Normalize converts timestamps to UTC and removes duplicate tags.
func (u *TaskUpdate) Normalize() {
	u.DueDate.Value = utcPtr(u.DueDate.Value)
	u.CompletionDate.Value = utcPtr(u.CompletionDate.Value)
	u.ReminderTime.Value = utcPtr(u.ReminderTime.Value)
	if u.Tags.Set {
		u.Tags.Value = dedupe(u.Tags.Value)
	}
	if u.Recurrence.Set && u.Recurrence.Value == "" {
		u.Recurrence.Value = RecurrenceNone
	}
}
