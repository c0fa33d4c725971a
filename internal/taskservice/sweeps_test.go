package taskservice_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// ── recurrence ───────────────────────────────────────────────────────────────

func (f *fixture) successorOf(t *testing.T, parentID string) []*domain.Task {
	t.Helper()
	page, err := f.svc.GetTasks(f.ctx, domain.TaskQuery{ParentTaskID: parentID})
	require.NoError(t, err)
	return page.Tasks
}

func TestRecurrence_WeeklyCompletionYieldsNextWeek(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{
		Title:      "Weekly BP check",
		Recurrence: domain.RecurrenceWeekly,
		DueDate:    at(day(1)),
		AssignedTo: str("nurse-1"),
		Tags:       []string{"vitals"},
	})

	_, err := f.svc.UpdateTaskStatus(f.ctx, task.ID, domain.StatusCompleted)
	require.NoError(t, err)

	next := f.successorOf(t, task.ID)
	require.Len(t, next, 1, "exactly one successor even though it was scheduled at creation")
	s := next[0]
	assert.Equal(t, domain.StatusPending, s.Status)
	require.NotNil(t, s.DueDate)
	assert.True(t, day(8).Equal(*s.DueDate), "got %s", s.DueDate)
	require.NotNil(t, s.ParentTaskID)
	assert.Equal(t, task.ID, *s.ParentTaskID)
	assert.Equal(t, "nurse-1", s.Assignee())
	assert.Equal(t, []string{"vitals"}, s.Tags)
	assert.False(t, s.ReminderSent)
}

func TestRecurrence_CustomTwoWeeks(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{
		Title:            "Care plan review",
		Recurrence:       domain.RecurrenceCustom,
		RecurrenceConfig: &domain.RecurrenceConfig{Interval: 2, Unit: domain.UnitWeeks},
		DueDate:          at(day(1)),
	})

	_, err := f.svc.UpdateTaskStatus(f.ctx, task.ID, domain.StatusCompleted)
	require.NoError(t, err)

	next := f.successorOf(t, task.ID)
	require.Len(t, next, 1)
	assert.True(t, day(15).Equal(*next[0].DueDate), "got %s", next[0].DueDate)
}

func TestRecurrence_ReminderKeepsLeadTime(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{
		Title:        "Insulin",
		Recurrence:   domain.RecurrenceDaily,
		DueDate:      at(day(1)),
		ReminderTime: at(day(1).Add(-30 * time.Minute)),
	})

	next := f.successorOf(t, task.ID)
	require.Len(t, next, 1)
	require.NotNil(t, next[0].ReminderTime)
	assert.True(t, day(2).Add(-30*time.Minute).Equal(*next[0].ReminderTime))
}

func TestRecurrence_NoSuccessor(t *testing.T) {
	tests := []struct {
		name string
		in   domain.NewTask
	}{
		{"no due date", domain.NewTask{Title: "x", Recurrence: domain.RecurrenceWeekly}},
		{"custom without config", domain.NewTask{Title: "x", Recurrence: domain.RecurrenceCustom, DueDate: at(day(1))}},
		{"custom with bad unit", domain.NewTask{
			Title:            "x",
			Recurrence:       domain.RecurrenceCustom,
			RecurrenceConfig: &domain.RecurrenceConfig{Interval: 1, Unit: "fortnights"},
			DueDate:          at(day(1)),
		}},
		{"not recurring", domain.NewTask{Title: "x", DueDate: at(day(1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.create(t, tt.in)

			_, err := f.svc.UpdateTaskStatus(f.ctx, task.ID, domain.StatusCompleted)
			require.NoError(t, err)
			assert.Empty(t, f.successorOf(t, task.ID))
		})
	}
}

func TestRecurrence_CancelledSpawnsNothingNew(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{Title: "x", Recurrence: domain.RecurrenceDaily, DueDate: at(day(1))})

	_, err := f.svc.UpdateTaskStatus(f.ctx, task.ID, domain.StatusCancelled)
	require.NoError(t, err)

	successors := f.successorOf(t, task.ID)
	require.Len(t, successors, 1, "only the successor scheduled at creation")
	assert.Empty(t, f.successorOf(t, successors[0].ID))
}

func TestRecurrence_ChainAdvancesOneStepPerCompletion(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, domain.NewTask{Title: "x", Recurrence: domain.RecurrenceDaily, DueDate: at(day(1))})

	second := f.successorOf(t, first.ID)[0]
	_, err := f.svc.UpdateTaskStatus(f.ctx, second.ID, domain.StatusCompleted)
	require.NoError(t, err)

	third := f.successorOf(t, second.ID)
	require.Len(t, third, 1)
	assert.True(t, day(3).Equal(*third[0].DueDate))
}

func TestRecurrence_SuccessorFollowsEditedDueDate(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{Title: "Weekly BP check", Recurrence: domain.RecurrenceWeekly, DueDate: at(day(1))})
	scheduled := f.successorOf(t, task.ID)
	require.Len(t, scheduled, 1)

	_, err := f.svc.UpdateTask(f.ctx, task.ID, domain.TaskUpdate{DueDate: domain.Some(at(day(3)))})
	require.NoError(t, err)
	_, err = f.svc.UpdateTaskStatus(f.ctx, task.ID, domain.StatusCompleted)
	require.NoError(t, err)

	next := f.successorOf(t, task.ID)
	require.Len(t, next, 1)
	assert.Equal(t, scheduled[0].ID, next[0].ID, "rescheduled in place")
	assert.True(t, day(10).Equal(*next[0].DueDate), "got %s", next[0].DueDate)
}

func TestRecurrence_RuleChangedOnCompletion(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{
		Title:        "Insulin",
		Recurrence:   domain.RecurrenceWeekly,
		DueDate:      at(day(1)),
		ReminderTime: at(day(1).Add(-time.Hour)),
	})

	_, err := f.svc.UpdateTask(f.ctx, task.ID, domain.TaskUpdate{
		Status:     domain.Some(domain.StatusCompleted),
		Recurrence: domain.Some(domain.RecurrenceDaily),
	})
	require.NoError(t, err)

	next := f.successorOf(t, task.ID)
	require.Len(t, next, 1)
	assert.Equal(t, domain.RecurrenceDaily, next[0].Recurrence)
	assert.True(t, day(2).Equal(*next[0].DueDate), "got %s", next[0].DueDate)
	require.NotNil(t, next[0].ReminderTime)
	assert.True(t, day(2).Add(-time.Hour).Equal(*next[0].ReminderTime))
}

func TestRecurrence_ClearingRuleWithdrawsSuccessor(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{Title: "x", Recurrence: domain.RecurrenceWeekly, DueDate: at(day(1))})
	require.Len(t, f.successorOf(t, task.ID), 1)

	_, err := f.svc.UpdateTask(f.ctx, task.ID, domain.TaskUpdate{Recurrence: domain.Some(domain.RecurrenceNone)})
	require.NoError(t, err)
	_, err = f.svc.UpdateTaskStatus(f.ctx, task.ID, domain.StatusCompleted)
	require.NoError(t, err)

	assert.Empty(t, f.successorOf(t, task.ID))
}

func TestRecurrence_StartedSuccessorKeepsItsDate(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, domain.NewTask{Title: "x", Recurrence: domain.RecurrenceWeekly, DueDate: at(day(1))})
	successor := f.successorOf(t, task.ID)[0]
	_, err := f.svc.UpdateTaskStatus(f.ctx, successor.ID, domain.StatusInProgress)
	require.NoError(t, err)

	_, err = f.svc.UpdateTask(f.ctx, task.ID, domain.TaskUpdate{DueDate: domain.Some(at(day(3)))})
	require.NoError(t, err)

	next := f.successorOf(t, task.ID)
	require.Len(t, next, 1)
	assert.True(t, day(8).Equal(*next[0].DueDate), "got %s", next[0].DueDate)
}

func TestRecurrence_PlainChildIsNotTouched(t *testing.T) {
	f := newFixture(t)
	parent := f.create(t, domain.NewTask{Title: "Discharge", DueDate: at(day(1))})
	child := f.create(t, domain.NewTask{Title: "Pack meds", ParentTaskID: str(parent.ID)})

	_, err := f.svc.UpdateTaskStatus(f.ctx, parent.ID, domain.StatusCompleted)
	require.NoError(t, err)

	got, err := f.svc.GetTaskByID(f.ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusPending, got.Status)
}

// ── sweeps ───────────────────────────────────────────────────────────────────

func TestMarkOverdueTasks_OnlyPending(t *testing.T) {
	f := newFixture(t)
	yesterday := now.Add(-24 * time.Hour)
	pending := f.create(t, domain.NewTask{Title: "pending", DueDate: at(yesterday)})
	inProgress := f.create(t, domain.NewTask{Title: "in progress", DueDate: at(yesterday), Status: domain.StatusInProgress})
	future := f.create(t, domain.NewTask{Title: "future", DueDate: at(now.Add(time.Hour))})

	// Prime the cache so the sweep has something to invalidate.
	_, err := f.svc.GetTaskByID(f.ctx, pending.ID)
	require.NoError(t, err)

	n, err := f.svc.MarkOverdueTasks(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]domain.Status{
		pending.ID:    domain.StatusOverdue,
		inProgress.ID: domain.StatusInProgress,
		future.ID:     domain.StatusPending,
	} {
		got, err := f.svc.GetTaskByID(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, got.Title)
	}

	n, err = f.svc.MarkOverdueTasks(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessTaskReminders(t *testing.T) {
	f := newFixture(t)
	due := f.create(t, domain.NewTask{Title: "due", ReminderTime: at(now.Add(2 * time.Minute)), AssignedTo: str("nurse-1")})
	f.create(t, domain.NewTask{Title: "later", ReminderTime: at(now.Add(10 * time.Minute))})
	f.create(t, domain.NewTask{Title: "past", ReminderTime: at(now.Add(-time.Minute))})
	f.create(t, domain.NewTask{Title: "done", ReminderTime: at(now.Add(time.Minute)), Status: domain.StatusCompleted})

	n, err := f.svc.ProcessTaskReminders(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.publisher.sent, 1)
	r := f.publisher.sent[0]
	assert.Equal(t, due.ID, r.TaskID)
	assert.Equal(t, "clinic-a", r.TenantID)
	assert.Equal(t, "nurse-1", *r.AssignedTo)

	got, err := f.svc.GetTaskByID(f.ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, got.ReminderSent)

	n, err = f.svc.ProcessTaskReminders(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a reminder is handled once")
	assert.Len(t, f.publisher.sent, 1)
}

func TestProcessTaskReminders_PublishFailureStillCounts(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker unavailable")
	task := f.create(t, domain.NewTask{Title: "due", ReminderTime: at(now.Add(time.Minute))})

	n, err := f.svc.ProcessTaskReminders(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.GetTaskByID(f.ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.ReminderSent, "the flag is not rolled back")
}

// ── reports ──────────────────────────────────────────────────────────────────

func TestGetTaskStatistics(t *testing.T) {
	f := newFixture(t)

	empty, err := f.svc.GetTaskStatistics(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.CompletionRate)

	f.create(t, domain.NewTask{Title: "a", Status: domain.StatusCompleted})
	f.create(t, domain.NewTask{Title: "b", Priority: domain.PriorityUrgent, DueDate: at(now.Add(time.Hour))})
	f.create(t, domain.NewTask{Title: "c"})

	stats, err := f.svc.GetTaskStatistics(f.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.Pending)
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 1, stats.HighPriority)
	assert.EqualValues(t, 1, stats.DueToday)
	assert.Equal(t, 33, stats.CompletionRate)
}

func TestGetTaskCategories_LargestFirst(t *testing.T) {
	f := newFixture(t)
	for _, c := range []string{"medication", "vitals", "medication", "hygiene", "medication", "vitals"} {
		f.create(t, domain.NewTask{Title: c, Category: c})
	}

	cats, err := f.svc.GetTaskCategories(f.ctx)
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Equal(t, domain.CategoryCount{Category: "medication", Count: 3}, cats[0])
	assert.Equal(t, domain.CategoryCount{Category: "vitals", Count: 2}, cats[1])
	assert.Equal(t, domain.CategoryCount{Category: "hygiene", Count: 1}, cats[2])
}

func TestGetOverdueTasks_IncludesUnsweptAndInProgress(t *testing.T) {
	f := newFixture(t)
	late := f.create(t, domain.NewTask{Title: "late", DueDate: at(now.Add(-2 * time.Hour))})
	busy := f.create(t, domain.NewTask{Title: "busy", DueDate: at(now.Add(-time.Hour)), Status: domain.StatusInProgress})
	f.create(t, domain.NewTask{Title: "done", DueDate: at(now.Add(-time.Hour)), Status: domain.StatusCompleted})
	f.create(t, domain.NewTask{Title: "ahead", DueDate: at(now.Add(time.Hour))})

	got, err := f.svc.GetOverdueTasks(f.ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, late.ID, got[0].ID, "oldest first")
	assert.Equal(t, busy.ID, got[1].ID)
}

func TestGetOverdueTasks_DueNowIsNotOverdueYet(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.NewTask{Title: "due now", DueDate: at(now)})

	got, err := f.svc.GetOverdueTasks(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := f.svc.MarkOverdueTasks(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the sweep and the overdue view agree")
}

func TestGetUpcomingTasks_Horizon(t *testing.T) {
	f := newFixture(t)
	soon := f.create(t, domain.NewTask{Title: "soon", DueDate: at(now.Add(24 * time.Hour))})
	f.create(t, domain.NewTask{Title: "far", DueDate: at(now.Add(10 * 24 * time.Hour))})

	got, err := f.svc.GetUpcomingTasks(f.ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, got, 1, "default horizon is a week")
	assert.Equal(t, soon.ID, got[0].ID)

	got, err = f.svc.GetUpcomingTasks(f.ctx, 14, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
