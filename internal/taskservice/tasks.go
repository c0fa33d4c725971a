package taskservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-care-tasks/internal/cache"
	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/pkg/telemetry"
)

// CreateTask stores a new task with defaults applied. A recurring task gets
// its first successor scheduled right away.
func (s *Service) CreateTask(ctx context.Context, in domain.NewTask) (*domain.Task, error) {
	ctx, span, tenantID, err := s.begin(ctx, "CreateTask")
	defer span.End()
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	id := in.ID
	if id == "" {
		id = s.newID()
	}
	task := in.Build(tenantID, id, s.clock())
	span.SetAttributes(attribute.String("task.id", task.ID))

	if err := s.repo.Create(ctx, task); err != nil {
		s.fail(ctx, span, "CreateTask", tenantID, err)
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.invalidate(ctx, tenantID, nil, task.Assignee())

	if task.IsRecurring() {
		s.syncSuccessor(ctx, tenantID, task)
	}
	return task, nil
}

// GetTaskByID returns the task, or nil when it does not exist or was deleted.
func (s *Service) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	ctx, span, tenantID, err := s.begin(ctx, "GetTaskByID")
	defer span.End()
	if err != nil {
		return nil, err
	}

	task, err := readThrough(ctx, s, "task", cache.KeysFor(tenantID).Task(id), cache.TaskTTL,
		func(ctx context.Context) (*domain.Task, error) {
			return s.repo.GetByID(ctx, tenantID, id)
		})
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		s.fail(ctx, span, "GetTaskByID", tenantID, err)
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// UpdateTask applies a partial update and returns the stored task, or nil
// when the task does not exist.
//
// A status change must follow the task state machine. Completing a task
// without an explicit completion_date stamps it with the current time, and
// completing a recurring task schedules its successor. Moving the due date
// or changing the recurrence rule of an open task reschedules a successor
// nobody has started yet. Moving the reminder re-arms it unless
// reminder_sent is part of the patch.
func (s *Service) UpdateTask(ctx context.Context, id string, patch domain.TaskUpdate) (*domain.Task, error) {
	ctx, span, tenantID, err := s.begin(ctx, "UpdateTask")
	defer span.End()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", id))
	return s.update(ctx, span, tenantID, id, patch)
}

func (s *Service) update(ctx context.Context, span trace.Span, tenantID, id string, patch domain.TaskUpdate) (*domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	patch.Normalize()

	current, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		s.fail(ctx, span, "UpdateTask", tenantID, err)
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}

	now := s.clock()
	completing := false
	if patch.Status.Set {
		next := patch.Status.Value
		if !current.Status.CanTransitionTo(next) {
			return nil, &domain.InvalidTransitionError{TaskID: id, From: current.Status, To: next}
		}
		completing = next == domain.StatusCompleted && current.Status != domain.StatusCompleted
		if completing && !patch.CompletionDate.Set {
			patch.CompletionDate = domain.Some(&now)
		}
	}
	if patch.ReminderTime.Set && !patch.ReminderSent.Set {
		patch.ReminderSent = domain.Some(false)
	}

	updated, err := s.repo.Update(ctx, tenantID, id, patch, now)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		s.fail(ctx, span, "UpdateTask", tenantID, err)
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	s.invalidate(ctx, tenantID, []string{id}, current.Assignee(), updated.Assignee())

	series := current.IsRecurring() || updated.IsRecurring()
	if series && (completing || (patch.Reschedules() && !updated.Status.IsTerminal())) {
		s.syncSuccessor(ctx, tenantID, updated)
	}
	return updated, nil
}

// DeleteTask soft-deletes the task. It reports false when the task does
// not exist or is already deleted.
func (s *Service) DeleteTask(ctx context.Context, id string) (bool, error) {
	ctx, span, tenantID, err := s.begin(ctx, "DeleteTask")
	defer span.End()
	if err != nil {
		return false, err
	}

	// Read first so the assignee's cached views can be dropped too.
	current, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		s.fail(ctx, span, "DeleteTask", tenantID, err)
		return false, fmt.Errorf("load task %s: %w", id, err)
	}

	if err := s.repo.SoftDelete(ctx, tenantID, id, s.clock()); err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		s.fail(ctx, span, "DeleteTask", tenantID, err)
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	s.invalidate(ctx, tenantID, []string{id}, current.Assignee())
	return true, nil
}

// GetTasks returns one page of tasks matching q. Store failures degrade to
// an empty page; only an invalid query is reported as an error.
func (s *Service) GetTasks(ctx context.Context, q domain.TaskQuery) (*domain.TaskPage, error) {
	ctx, span, tenantID, err := s.begin(ctx, "GetTasks")
	defer span.End()
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Normalize()

	page, err := readThrough(ctx, s, "list", cache.KeysFor(tenantID).List(q), cache.ListTTL,
		func(ctx context.Context) (*domain.TaskPage, error) {
			return s.repo.List(ctx, tenantID, q)
		})
	if err != nil {
		s.fail(ctx, span, "GetTasks", tenantID, err)
		return domain.EmptyPage(), nil
	}
	return page, nil
}

// AssignTask sets the assignee. The acting user, when known, is recorded
// as assigned_by.
func (s *Service) AssignTask(ctx context.Context, id, assignee string) (*domain.Task, error) {
	if assignee == "" {
		return nil, &domain.ValidationError{Field: "assigned_to", Reason: "must not be empty"}
	}
	patch := domain.TaskUpdate{AssignedTo: domain.Some(&assignee)}
	if actor := domain.ActorFromContext(ctx); actor != "" {
		patch.AssignedBy = domain.Some(&actor)
	}
	return s.UpdateTask(ctx, id, patch)
}

// UpdateTaskStatus moves the task to status.
func (s *Service) UpdateTaskStatus(ctx context.Context, id string, status domain.Status) (*domain.Task, error) {
	return s.UpdateTask(ctx, id, domain.TaskUpdate{Status: domain.Some(status)})
}

// AddTagToTask adds tag to the task's tag set. Adding a tag that is already
// present returns the task unchanged.
func (s *Service) AddTagToTask(ctx context.Context, id, tag string) (*domain.Task, error) {
	if tag == "" {
		return nil, &domain.ValidationError{Field: "tag", Reason: "must not be empty"}
	}
	return s.editTags(ctx, "AddTagToTask", id, func(tags []string) ([]string, bool) {
		if slices.Contains(tags, tag) {
			return tags, false
		}
		return append(slices.Clone(tags), tag), true
	})
}

// RemoveTagFromTask removes tag from the task's tag set. Removing an absent
// tag returns the task unchanged.
func (s *Service) RemoveTagFromTask(ctx context.Context, id, tag string) (*domain.Task, error) {
	return s.editTags(ctx, "RemoveTagFromTask", id, func(tags []string) ([]string, bool) {
		if !slices.Contains(tags, tag) {
			return tags, false
		}
		return slices.DeleteFunc(slices.Clone(tags), func(t string) bool { return t == tag }), true
	})
}

// editTags reads the tag set, applies edit and writes the whole set back
// when edit reports a change.
func (s *Service) editTags(ctx context.Context, op, id string, edit func([]string) ([]string, bool)) (*domain.Task, error) {
	ctx, span, tenantID, err := s.begin(ctx, op)
	defer span.End()
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		s.fail(ctx, span, op, tenantID, err)
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}

	tags, changed := edit(current.Tags)
	if !changed {
		return current, nil
	}
	return s.update(ctx, span, tenantID, id, domain.TaskUpdate{Tags: domain.Some(tags)})
}

// syncSuccessor brings the next occurrence of src in line with src's
// current due date and recurrence rule. A missing successor is created, a
// stale one is rescheduled and one that src no longer yields is deleted.
// A successor that has been started is left alone. Failures are audited
// but never fail the triggering write.
func (s *Service) syncSuccessor(ctx context.Context, tenantID string, src *domain.Task) {
	log := s.logger.With(slog.String("tenant_id", tenantID), slog.String("task_id", src.ID))

	existing, err := s.repo.FindSuccessor(ctx, tenantID, src.ID)
	if err != nil {
		s.auditSuccessor(ctx, tenantID, src.ID, err)
		return
	}
	var want *domain.Task
	if src.IsRecurring() {
		want = domain.Successor(src, s.newID(), s.clock())
	}

	switch {
	case existing == nil && want == nil:
		return
	case existing == nil:
		if err := s.repo.Create(ctx, want); err != nil {
			s.auditSuccessor(ctx, tenantID, src.ID, err)
			return
		}
		telemetry.SuccessorsCreatedTotal.Inc()
		s.invalidate(ctx, tenantID, nil, want.Assignee())
		log.Info("successor scheduled",
			slog.String("successor_id", want.ID),
			slog.Time("due_date", *want.DueDate),
		)
	case !existing.IsRecurring():
		log.Debug("child task is not part of the series", slog.String("child_id", existing.ID))
	case existing.Status != domain.StatusPending && existing.Status != domain.StatusOverdue:
		log.Debug("successor already started", slog.String("successor_id", existing.ID))
	case want == nil:
		if err := s.repo.SoftDelete(ctx, tenantID, existing.ID, s.clock()); err != nil && !domain.IsNotFound(err) {
			s.auditSuccessor(ctx, tenantID, src.ID, err)
			return
		}
		s.invalidate(ctx, tenantID, []string{existing.ID}, existing.Assignee())
		log.Info("successor withdrawn", slog.String("successor_id", existing.ID))
	case sameOccurrence(existing, want):
		log.Debug("successor already scheduled", slog.String("successor_id", existing.ID))
	default:
		patch := domain.TaskUpdate{
			DueDate:          domain.Some(want.DueDate),
			ReminderTime:     domain.Some(want.ReminderTime),
			ReminderSent:     domain.Some(false),
			Recurrence:       domain.Some(want.Recurrence),
			RecurrenceConfig: domain.Some(want.RecurrenceConfig),
		}
		if existing.Status == domain.StatusOverdue {
			patch.Status = domain.Some(domain.StatusPending)
		}
		if _, err := s.repo.Update(ctx, tenantID, existing.ID, patch, s.clock()); err != nil {
			s.auditSuccessor(ctx, tenantID, src.ID, err)
			return
		}
		s.invalidate(ctx, tenantID, []string{existing.ID}, existing.Assignee())
		log.Info("successor rescheduled",
			slog.String("successor_id", existing.ID),
			slog.Time("due_date", *want.DueDate),
		)
	}
}

// sameOccurrence reports whether have already matches the occurrence want
// describes.
func sameOccurrence(have, want *domain.Task) bool {
	return equalTime(have.DueDate, want.DueDate) &&
		equalTime(have.ReminderTime, want.ReminderTime) &&
		have.Recurrence == want.Recurrence &&
		equalConfig(have.RecurrenceConfig, want.RecurrenceConfig)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalConfig(a, b *domain.RecurrenceConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Service) auditSuccessor(ctx context.Context, tenantID, parentID string, err error) {
	telemetry.ServiceErrorsTotal.WithLabelValues("syncSuccessor").Inc()
	s.audit.LogError(ctx, auditEntry("syncSuccessor", tenantID,
		fmt.Errorf("sync successor of %s: %w", parentID, err)))
}
