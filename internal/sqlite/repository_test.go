package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/sqlite"
	"github.com/ramiqadoumi/go-care-tasks/internal/store"
)

func newRepo(t *testing.T) store.TaskRepository {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close() //nolint:errcheck
		}
	})
	return sqlite.NewRepository(db)
}

func makeTask(tenant, title string, mutate ...func(*domain.Task)) *domain.Task {
	now := time.Now().UTC()
	task := domain.NewTask{Title: title}.Build(tenant, uuid.NewString(), now)
	for _, m := range mutate {
		m(task)
	}
	return task
}

func at(t time.Time) *time.Time { return &t }

func normalized(q domain.TaskQuery) domain.TaskQuery {
	q.Normalize()
	return q
}

func TestSQLite_CreateGetByID(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	due := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	task := makeTask("t", "BP check", func(tk *domain.Task) {
		tk.DueDate = &due
		tk.Tags = []string{"vitals", "daily"}
		tk.Recurrence = domain.RecurrenceCustom
		tk.RecurrenceConfig = &domain.RecurrenceConfig{Interval: 3, Unit: domain.UnitDays}
	})
	require.NoError(t, repo.Create(ctx, task))

	got, err := repo.GetByID(ctx, "t", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "BP check", got.Title)
	assert.Equal(t, []string{"vitals", "daily"}, got.Tags)
	assert.Equal(t, task.RecurrenceConfig, got.RecurrenceConfig)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
}

func TestSQLite_GetByID_OtherTenantIsNotFound(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	task := makeTask("tenant-a", "private")
	require.NoError(t, repo.Create(ctx, task))

	_, err := repo.GetByID(ctx, "tenant-b", task.ID)
	var nf *domain.TaskNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, task.ID, nf.TaskID)
}

func TestSQLite_UpdateAndSoftDelete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	task := makeTask("t", "original", func(tk *domain.Task) { tk.Description = "keep" })
	require.NoError(t, repo.Create(ctx, task))

	got, err := repo.Update(ctx, "t", task.ID, domain.TaskUpdate{
		Title:      domain.Some("renamed"),
		AssignedTo: domain.Some(strPtr("nurse-1")),
		Tags:       domain.Some([]string{"x"}),
	}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, "keep", got.Description)
	assert.Equal(t, "nurse-1", got.Assignee())
	assert.Equal(t, []string{"x"}, got.Tags)

	got, err = repo.Update(ctx, "t", task.ID, domain.TaskUpdate{AssignedTo: domain.Some[*string](nil)}, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo, "explicit null clears the column")

	require.NoError(t, repo.SoftDelete(ctx, "t", task.ID, time.Now().UTC()))
	assert.True(t, domain.IsNotFound(repo.SoftDelete(ctx, "t", task.ID, time.Now().UTC())))

	_, err = repo.Update(ctx, "t", task.ID, domain.TaskUpdate{Title: domain.Some("ghost")}, time.Now().UTC())
	assert.True(t, domain.IsNotFound(err), "deleted rows are not updatable")
}

func TestSQLite_ListStatusAndAnyTag(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	completed := func(tags ...string) func(*domain.Task) {
		return func(tk *domain.Task) { tk.Status = domain.StatusCompleted; tk.Tags = tags }
	}
	match1 := makeTask("t", "a", completed("urgent"))
	match2 := makeTask("t", "b", completed("review", "other"))
	for _, tk := range []*domain.Task{
		match1, match2,
		makeTask("t", "c", completed("other")),
		makeTask("t", "d", func(tk *domain.Task) { tk.Tags = []string{"urgent"} }),
	} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	page, err := repo.List(ctx, "t", normalized(domain.TaskQuery{
		Statuses: []domain.Status{domain.StatusCompleted},
		Tags:     []string{"urgent", "review"},
	}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Tasks, 2)
	assert.ElementsMatch(t, []string{match1.ID, match2.ID}, []string{page.Tasks[0].ID, page.Tasks[1].ID})
}

func TestSQLite_ListSearchSortAndPage(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	priorities := []domain.Priority{domain.PriorityLow, domain.PriorityUrgent, domain.PriorityMedium, domain.PriorityHigh}
	for i, p := range priorities {
		p := p
		require.NoError(t, repo.Create(ctx, makeTask("t", "Wound care "+string(rune('a'+i)), func(tk *domain.Task) {
			tk.Priority = p
		})))
	}
	require.NoError(t, repo.Create(ctx, makeTask("t", "50% dose")))

	page, err := repo.List(ctx, "t", normalized(domain.TaskQuery{
		Search: "wound", SortBy: domain.SortByPriority, SortOrder: domain.SortDesc, PageSize: 2,
	}))
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	require.Len(t, page.Tasks, 2)
	assert.Equal(t, domain.PriorityUrgent, page.Tasks[0].Priority)
	assert.Equal(t, domain.PriorityHigh, page.Tasks[1].Priority)

	page, err = repo.List(ctx, "t", normalized(domain.TaskQuery{Search: "50%"}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	page, err = repo.List(ctx, "t", normalized(domain.TaskQuery{Search: "_"}))
	require.NoError(t, err)
	assert.Zero(t, page.Total, "underscore is matched literally")
}

func TestSQLite_MarkOverdue_OnlyPending(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)

	pending := makeTask("t", "pending", func(tk *domain.Task) { tk.DueDate = at(yesterday) })
	inProgress := makeTask("t", "in progress", func(tk *domain.Task) {
		tk.DueDate = at(yesterday)
		tk.Status = domain.StatusInProgress
	})
	future := makeTask("t", "future", func(tk *domain.Task) { tk.DueDate = at(now.Add(time.Hour)) })
	for _, tk := range []*domain.Task{pending, inProgress, future} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	ids, err := repo.MarkOverdue(ctx, "t", now)
	require.NoError(t, err)
	assert.Equal(t, []string{pending.ID}, ids)

	got, err := repo.GetByID(ctx, "t", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, got.Status)

	got, err = repo.GetByID(ctx, "t", inProgress.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestSQLite_RemindersAndConditionalFlip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := makeTask("t", "due", func(tk *domain.Task) { tk.ReminderTime = at(now.Add(2 * time.Minute)) })
	later := makeTask("t", "later", func(tk *domain.Task) { tk.ReminderTime = at(now.Add(time.Hour)) })
	cancelled := makeTask("t", "cancelled", func(tk *domain.Task) {
		tk.ReminderTime = at(now.Add(time.Minute))
		tk.Status = domain.StatusCancelled
	})
	for _, tk := range []*domain.Task{due, later, cancelled} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	tasks, err := repo.ListDueReminders(ctx, "t", now, now.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, due.ID, tasks[0].ID)

	ok, err := repo.MarkReminderSent(ctx, "t", due.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkReminderSent(ctx, "t", due.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_StatisticsCategoriesTenants(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, tk := range []*domain.Task{
		makeTask("t", "1", func(tk *domain.Task) { tk.Status = domain.StatusCompleted; tk.Category = "meds" }),
		makeTask("t", "2", func(tk *domain.Task) { tk.Priority = domain.PriorityHigh; tk.Category = "meds" }),
		makeTask("t", "3", func(tk *domain.Task) { tk.Priority = domain.PriorityUrgent; tk.Status = domain.StatusCancelled }),
		makeTask("t", "4", func(tk *domain.Task) { tk.DueDate = at(now) }),
		makeTask("other", "5"),
	} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	s, err := repo.Statistics(ctx, "t", now)
	require.NoError(t, err)
	assert.EqualValues(t, 4, s.Total)
	assert.EqualValues(t, 2, s.Pending)
	assert.EqualValues(t, 1, s.Completed)
	assert.EqualValues(t, 1, s.HighPriority, "cancelled urgent task is not counted")
	assert.EqualValues(t, 1, s.DueToday)
	assert.Equal(t, 25, s.CompletionRate)

	cats, err := repo.Categories(ctx, "t")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, domain.CategoryCount{Category: "general", Count: 2}, cats[0])
	assert.Equal(t, domain.CategoryCount{Category: "meds", Count: 2}, cats[1])

	tenants, err := repo.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "t"}, tenants)
}

func TestSQLite_FindSuccessor(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	parent := makeTask("t", "parent")
	require.NoError(t, repo.Create(ctx, parent))

	got, err := repo.FindSuccessor(ctx, "t", parent.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	child := makeTask("t", "child", func(tk *domain.Task) { tk.ParentTaskID = &parent.ID })
	require.NoError(t, repo.Create(ctx, child))

	got, err = repo.FindSuccessor(ctx, "t", parent.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, child.ID, got.ID)
}

func strPtr(s string) *string { return &s }
