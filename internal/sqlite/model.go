package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// taskRow is the gorm model of the tasks table. Tags and the recurrence
// config are stored as JSON text. Timestamps are managed by the caller.
// Ids are unique per tenant.
type taskRow struct {
	ID                 string     `gorm:"primaryKey"`
	TenantID           string     `gorm:"primaryKey;not null;index:idx_tasks_tenant_status,priority:1;index:idx_tasks_tenant_due,priority:1"`
	Title              string     `gorm:"not null"`
	Description        string     `gorm:"not null;default:''"`
	Category           string     `gorm:"not null;default:general"`
	Status             string     `gorm:"not null;index:idx_tasks_tenant_status,priority:2"`
	Priority           string     `gorm:"not null"`
	DueDate            *time.Time `gorm:"index:idx_tasks_tenant_due,priority:2"`
	CompletionDate     *time.Time
	ReminderTime       *time.Time `gorm:"index"`
	ReminderSent       bool       `gorm:"not null;default:false"`
	AssignedTo         *string    `gorm:"index"`
	AssignedBy         *string
	PatientID          *string
	CareProfessionalID *string
	RelatedEntityType  *string
	RelatedEntityID    *string
	ParentTaskID       *string    `gorm:"index"`
	Recurrence         string     `gorm:"not null;default:none"`
	RecurrenceConfig   *string
	Tags               string     `gorm:"not null;default:'[]'"`
	CreatedAt          time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime:false"`
	DeletedAt          *time.Time `gorm:"index"`
}

func (taskRow) TableName() string { return "tasks" }

func fromDomain(t *domain.Task) (*taskRow, error) {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return nil, err
	}
	cfg, err := encodeConfig(t.RecurrenceConfig)
	if err != nil {
		return nil, err
	}
	return &taskRow{
		ID:                 t.ID,
		TenantID:           t.TenantID,
		Title:              t.Title,
		Description:        t.Description,
		Category:           t.Category,
		Status:             string(t.Status),
		Priority:           string(t.Priority),
		DueDate:            t.DueDate,
		CompletionDate:     t.CompletionDate,
		ReminderTime:       t.ReminderTime,
		ReminderSent:       t.ReminderSent,
		AssignedTo:         t.AssignedTo,
		AssignedBy:         t.AssignedBy,
		PatientID:          t.PatientID,
		CareProfessionalID: t.CareProfessionalID,
		RelatedEntityType:  t.RelatedEntityType,
		RelatedEntityID:    t.RelatedEntityID,
		ParentTaskID:       t.ParentTaskID,
		Recurrence:         string(t.Recurrence),
		RecurrenceConfig:   cfg,
		Tags:               tags,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		DeletedAt:          t.DeletedAt,
	}, nil
}

func (r *taskRow) toDomain() (*domain.Task, error) {
	t := &domain.Task{
		ID:                 r.ID,
		TenantID:           r.TenantID,
		Title:              r.Title,
		Description:        r.Description,
		Category:           r.Category,
		Status:             domain.Status(r.Status),
		Priority:           domain.Priority(r.Priority),
		DueDate:            utc(r.DueDate),
		CompletionDate:     utc(r.CompletionDate),
		ReminderTime:       utc(r.ReminderTime),
		ReminderSent:       r.ReminderSent,
		AssignedTo:         r.AssignedTo,
		AssignedBy:         r.AssignedBy,
		PatientID:          r.PatientID,
		CareProfessionalID: r.CareProfessionalID,
		RelatedEntityType:  r.RelatedEntityType,
		RelatedEntityID:    r.RelatedEntityID,
		ParentTaskID:       r.ParentTaskID,
		Recurrence:         domain.Recurrence(r.Recurrence),
		Tags:               []string{},
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
		DeletedAt:          utc(r.DeletedAt),
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", r.ID, err)
		}
	}
	if r.RecurrenceConfig != nil {
		var cfg domain.RecurrenceConfig
		if err := json.Unmarshal([]byte(*r.RecurrenceConfig), &cfg); err != nil {
			return nil, fmt.Errorf("decode recurrence config of %s: %w", r.ID, err)
		}
		t.RecurrenceConfig = &cfg
	}
	return t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(raw), nil
}

func encodeConfig(cfg *domain.RecurrenceConfig) (*string, error) {
	if cfg == nil {
		return nil, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode recurrence config: %w", err)
	}
	s := string(raw)
	return &s, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
