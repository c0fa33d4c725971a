package domain

import "time"

// Recurrence is the repeat rule of a task.
type Recurrence string

const (
	RecurrenceNone     Recurrence = "none"
	RecurrenceDaily    Recurrence = "daily"
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceBiweekly Recurrence = "biweekly"
	RecurrenceMonthly  Recurrence = "monthly"
	RecurrenceCustom   Recurrence = "custom"
)

// Valid reports whether r is one of the known rules.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceBiweekly,
		RecurrenceMonthly, RecurrenceCustom:
		return true
	}
	return false
}

// RecurrenceUnit is the unit of a custom recurrence interval.
type RecurrenceUnit string

const (
	UnitDays   RecurrenceUnit = "days"
	UnitWeeks  RecurrenceUnit = "weeks"
	UnitMonths RecurrenceUnit = "months"
)

// RecurrenceConfig parameterises RecurrenceCustom.
type RecurrenceConfig struct {
	Interval int            `json:"interval"`
	Unit     RecurrenceUnit `json:"unit"`
}

// NextDueDate advances due by one step of the rule. ok is false when the
// rule produces no next occurrence: RecurrenceNone, an unknown rule, or a
// custom rule whose config is missing or malformed.
func NextDueDate(due time.Time, r Recurrence, cfg *RecurrenceConfig) (next time.Time, ok bool) {
	switch r {
	case RecurrenceDaily:
		return due.AddDate(0, 0, 1), true
	case RecurrenceWeekly:
		return due.AddDate(0, 0, 7), true
	case RecurrenceBiweekly:
		return due.AddDate(0, 0, 14), true
	case RecurrenceMonthly:
		return due.AddDate(0, 1, 0), true
	case RecurrenceCustom:
		if cfg == nil || cfg.Interval <= 0 {
			return time.Time{}, false
		}
		switch cfg.Unit {
		case UnitDays:
			return due.AddDate(0, 0, cfg.Interval), true
		case UnitWeeks:
			return due.AddDate(0, 0, cfg.Interval*7), true
		case UnitMonths:
			return due.AddDate(0, cfg.Interval, 0), true
		}
	}
	return time.Time{}, false
}

// Successor builds the next occurrence of a recurring task. It returns nil
// when src has no due date or its rule yields no next date.
//
// The reminder keeps the same lead time before the due date as src had.
func Successor(src *Task, id string, now time.Time) *Task {
	if src.DueDate == nil {
		return nil
	}
	nextDue, ok := NextDueDate(*src.DueDate, src.Recurrence, src.RecurrenceConfig)
	if !ok {
		return nil
	}

	parent := src.ID
	next := &Task{
		ID:                 id,
		TenantID:           src.TenantID,
		Title:              src.Title,
		Description:        src.Description,
		Category:           src.Category,
		Status:             StatusPending,
		Priority:           src.Priority,
		DueDate:            &nextDue,
		AssignedTo:         src.AssignedTo,
		AssignedBy:         src.AssignedBy,
		PatientID:          src.PatientID,
		CareProfessionalID: src.CareProfessionalID,
		RelatedEntityType:  src.RelatedEntityType,
		RelatedEntityID:    src.RelatedEntityID,
		ParentTaskID:       &parent,
		Recurrence:         src.Recurrence,
		RecurrenceConfig:   copyConfig(src.RecurrenceConfig),
		Tags:               append([]string{}, src.Tags...),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if src.ReminderTime != nil {
		lead := src.DueDate.Sub(*src.ReminderTime)
		reminder := nextDue.Add(-lead)
		next.ReminderTime = &reminder
	}
	return next
}

func copyConfig(cfg *RecurrenceConfig) *RecurrenceConfig {
	if cfg == nil {
		return nil
	}
	c := *cfg
	return &c
}
