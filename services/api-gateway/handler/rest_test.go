package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-care-tasks/internal/audit"
	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/sqlite"
	"github.com/ramiqadoumi/go-care-tasks/internal/taskservice"
	"github.com/ramiqadoumi/go-care-tasks/services/api-gateway/handler"
	"github.com/ramiqadoumi/go-care-tasks/services/api-gateway/middleware"
)

var (
	secret = []byte("test-secret")
	now    = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
)

type api struct {
	t      *testing.T
	server *httptest.Server
	token  string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close() //nolint:errcheck
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := taskservice.New(sqlite.NewRepository(db),
		taskservice.WithAudit(audit.Nop{}),
		taskservice.WithLogger(logger),
		taskservice.WithClock(func() time.Time { return now }),
	)
	rest := handler.NewREST(svc, logger)

	r := chi.NewRouter()
	r.Get("/healthz", rest.Healthz)
	r.Get("/readyz", rest.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(secret, logger))
		r.Mount("/tasks", rest.Routes())
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	a := &api{t: t, server: srv}
	a.token = a.tokenFor("clinic-a", "nurse-1")
	return a
}

func (a *api) tokenFor(tenantID, subject string) string {
	token, err := middleware.SignToken(secret, tenantID, subject)
	require.NoError(a.t, err)
	return token
}

// do sends body (a JSON string, or "" for none) and decodes the response
// into out when out is non-nil.
func (a *api) do(method, path, body string, out any) int {
	return a.doAs(a.token, method, path, body, out)
}

func (a *api) doAs(token, method, path, body string, out any) int {
	a.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, a.server.URL+path, rdr)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *api) create(body string) *domain.Task {
	a.t.Helper()
	var task domain.Task
	require.Equal(a.t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/tasks", body, &task))
	return &task
}

type errorBody struct {
	Error string `json:"error"`
}

type listBody struct {
	Tasks    []*domain.Task `json:"tasks"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestCreateAndGetTask(t *testing.T) {
	a := newAPI(t)

	created := a.create(`{"title":"Change dressing","due_date":"2024-01-12T09:00:00Z","tags":["wound","wound"]}`)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "clinic-a", created.TenantID)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, domain.PriorityMedium, created.Priority)
	assert.Equal(t, domain.DefaultCategory, created.Category)
	assert.Equal(t, []string{"wound"}, created.Tags)

	var got domain.Task
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks/"+created.ID, "", &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Change dressing", got.Title)
}

func TestCreateTask_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"description":"no title"}`},
		{"unknown field", `{"title":"x","colour":"red"}`},
		{"bad priority", `{"title":"x","priority":"whenever"}`},
		{"malformed json", `{"title":`},
		{"two objects", `{"title":"a"}{"title":"b"}`},
		{"empty body", ``},
	}

	a := newAPI(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			code := a.do(http.MethodPost, "/api/v1/tasks", tt.body, &body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGetTask_NotFound(t *testing.T) {
	a := newAPI(t)

	var body errorBody
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/v1/tasks/nope", "", &body))
	assert.Equal(t, "task not found", body.Error)
}

func TestTenantIsolation(t *testing.T) {
	a := newAPI(t)
	created := a.create(`{"title":"Private"}`)

	other := a.tokenFor("clinic-b", "nurse-9")
	assert.Equal(t, http.StatusNotFound, a.doAs(other, http.MethodGet, "/api/v1/tasks/"+created.ID, "", nil))

	var list listBody
	require.Equal(t, http.StatusOK, a.doAs(other, http.MethodGet, "/api/v1/tasks", "", &list))
	assert.Zero(t, list.Total)
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	assert.Equal(t, http.StatusUnauthorized, a.doAs("", http.MethodGet, "/api/v1/tasks", "", nil))
	assert.Equal(t, http.StatusOK, a.doAs("", http.MethodGet, "/healthz", "", nil))
	assert.Equal(t, http.StatusOK, a.doAs("", http.MethodGet, "/readyz", "", nil))
}

func TestUpdateTask(t *testing.T) {
	a := newAPI(t)
	created := a.create(`{"title":"Call family"}`)
	path := "/api/v1/tasks/" + created.ID

	var updated domain.Task
	require.Equal(t, http.StatusOK, a.do(http.MethodPatch, path, `{"status":"completed","priority":"high"}`, &updated))
	assert.Equal(t, domain.StatusCompleted, updated.Status)
	assert.Equal(t, domain.PriorityHigh, updated.Priority)
	require.NotNil(t, updated.CompletionDate)
	assert.True(t, updated.CompletionDate.Equal(now))

	var conflict errorBody
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPatch, path, `{"status":"in_progress"}`, &conflict))
	assert.Contains(t, conflict.Error, "completed")

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPatch, path, `{"tenant_id":"clinic-b"}`, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPatch, path, `{}`, nil))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPatch, "/api/v1/tasks/nope", `{"title":"x"}`, nil))
}

func TestAssignStatusAndTags(t *testing.T) {
	a := newAPI(t)
	created := a.create(`{"title":"Medication round"}`)
	path := "/api/v1/tasks/" + created.ID

	var task domain.Task
	require.Equal(t, http.StatusOK, a.do(http.MethodPut, path+"/assignee", `{"assigned_to":"nurse-2"}`, &task))
	require.NotNil(t, task.AssignedTo)
	assert.Equal(t, "nurse-2", *task.AssignedTo)
	require.NotNil(t, task.AssignedBy)
	assert.Equal(t, "nurse-1", *task.AssignedBy, "the token subject is the assigner")

	require.Equal(t, http.StatusOK, a.do(http.MethodPut, path+"/status", `{"status":"in_progress"}`, &task))
	assert.Equal(t, domain.StatusInProgress, task.Status)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, path+"/status", `{"status":"sleeping"}`, nil))

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, path+"/tags", `{"tag":"morning"}`, &task))
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, path+"/tags", `{"tag":"morning"}`, &task))
	assert.Equal(t, []string{"morning"}, task.Tags)

	require.Equal(t, http.StatusOK, a.do(http.MethodDelete, path+"/tags/morning", "", &task))
	assert.Empty(t, task.Tags)
	require.Equal(t, http.StatusOK, a.do(http.MethodDelete, path+"/tags/absent", "", &task))
	assert.Empty(t, task.Tags)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, path+"/tags", `{"tag":""}`, nil))
}

func TestDeleteTask(t *testing.T) {
	a := newAPI(t)
	created := a.create(`{"title":"Temporary"}`)
	path := "/api/v1/tasks/" + created.ID

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, path, "", nil))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, path, "", nil))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, path, "", nil))
}

func TestListTasks_FiltersAndPages(t *testing.T) {
	a := newAPI(t)
	a.create(`{"title":"Wash","priority":"low","tags":["hygiene"]}`)
	a.create(`{"title":"Feed","priority":"high","tags":["nutrition"]}`)
	a.create(`{"title":"Walk","priority":"urgent","status":"in_progress"}`)

	var list listBody
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks?priority=high,urgent&page_size=1&sort_by=title&sort_order=asc", "", &list))
	assert.EqualValues(t, 2, list.Total)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Feed", list.Tasks[0].Title)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 1, list.PageSize)

	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks?tags=hygiene&tags=nutrition&status=pending", "", &list))
	assert.EqualValues(t, 2, list.Total)

	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks?search=wal", "", &list))
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Walk", list.Tasks[0].Title)
}

func TestListTasks_RejectsBadQuery(t *testing.T) {
	a := newAPI(t)

	for _, q := range []string{
		"status=sleeping",
		"sort_by=password",
		"sort_order=sideways",
		"due_from=yesterday",
		"page=two",
	} {
		t.Run(q, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/tasks?"+q, "", nil))
		})
	}
}

func TestReports(t *testing.T) {
	a := newAPI(t)
	a.create(`{"title":"Late","category":"medication","due_date":"2024-01-05T09:00:00Z"}`)
	a.create(`{"title":"Soon","category":"medication","due_date":"2024-01-12T09:00:00Z","assigned_to":"nurse-2"}`)
	a.create(`{"title":"Done","status":"completed"}`)

	var stats domain.Statistics
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks/statistics", "", &stats))
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.Completed)
	assert.Equal(t, 33, stats.CompletionRate)

	var cats struct {
		Categories []domain.CategoryCount `json:"categories"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks/categories", "", &cats))
	require.NotEmpty(t, cats.Categories)
	assert.Equal(t, domain.CategoryCount{Category: "medication", Count: 2}, cats.Categories[0])

	var overdue listBody
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks/overdue", "", &overdue))
	require.Len(t, overdue.Tasks, 1)
	assert.Equal(t, "Late", overdue.Tasks[0].Title)

	var upcoming listBody
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/tasks/upcoming?days=3&assignee=nurse-2", "", &upcoming))
	require.Len(t, upcoming.Tasks, 1)
	assert.Equal(t, "Soon", upcoming.Tasks[0].Title)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/tasks/upcoming?days=0", "", nil))
}
