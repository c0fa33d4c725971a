package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// TaskService is the task API the REST handler serves. Every call reads
// the tenant from its context.
type TaskService interface {
	CreateTask(ctx context.Context, in domain.NewTask) (*domain.Task, error)
	GetTaskByID(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskUpdate) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
	GetTasks(ctx context.Context, q domain.TaskQuery) (*domain.TaskPage, error)
	AssignTask(ctx context.Context, id, assignee string) (*domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status domain.Status) (*domain.Task, error)
	AddTagToTask(ctx context.Context, id, tag string) (*domain.Task, error)
	RemoveTagFromTask(ctx context.Context, id, tag string) (*domain.Task, error)
	GetTaskStatistics(ctx context.Context) (*domain.Statistics, error)
	GetTaskCategories(ctx context.Context) ([]domain.CategoryCount, error)
	GetOverdueTasks(ctx context.Context) ([]*domain.Task, error)
	GetUpcomingTasks(ctx context.Context, days int, assignee string) ([]*domain.Task, error)
	Ping(ctx context.Context) error
}

// REST handles HTTP requests for the API Gateway.
type REST struct {
	svc    TaskService
	logger *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(svc TaskService, logger *slog.Logger) *REST {
	return &REST{svc: svc, logger: logger}
}

// Routes returns the task routes, to be mounted under /api/v1/tasks behind
// authentication.
func (h *REST) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateTask)
	r.Get("/", h.ListTasks)
	r.Get("/statistics", h.GetStatistics)
	r.Get("/categories", h.GetCategories)
	r.Get("/overdue", h.GetOverdue)
	r.Get("/upcoming", h.GetUpcoming)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetTask)
		r.Patch("/", h.UpdateTask)
		r.Delete("/", h.DeleteTask)
		r.Put("/assignee", h.AssignTask)
		r.Put("/status", h.UpdateStatus)
		r.Post("/tags", h.AddTag)
		r.Delete("/tags/{tag}", h.RemoveTag)
	})
	return r
}

type assignRequest struct {
	AssignedTo string `json:"assigned_to" validate:"required,max=128"`
}

type statusRequest struct {
	Status domain.Status `json:"status" validate:"required,oneof=pending in_progress completed cancelled overdue"`
}

type tagRequest struct {
	Tag string `json:"tag" validate:"required,max=64"`
}

type listResponse struct {
	Tasks    []*domain.Task `json:"tasks"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// CreateTask handles POST /api/v1/tasks.
func (h *REST) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api-gateway").Start(r.Context(), "api_gateway.create_task")
	defer span.End()

	var in domain.NewTask
	if !h.decode(w, r, &in) {
		return
	}

	task, err := h.svc.CreateTask(ctx, in)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("task.id", task.ID))
	h.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("tenant_id", task.TenantID),
		slog.String("recurrence", string(task.Recurrence)),
	)
	writeJSON(w, http.StatusCreated, task)
}

// ListTasks handles GET /api/v1/tasks.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	q, err := parseTaskQuery(r.URL.Query())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	page, err := h.svc.GetTasks(r.Context(), q)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	q.Normalize()
	writeJSON(w, http.StatusOK, listResponse{Tasks: page.Tasks, Total: page.Total, Page: q.Page, PageSize: q.PageSize})
}

// GetStatistics handles GET /api/v1/tasks/statistics.
func (h *REST) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetTaskStatistics(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetCategories handles GET /api/v1/tasks/categories.
func (h *REST) GetCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.GetTaskCategories(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// GetOverdue handles GET /api/v1/tasks/overdue.
func (h *REST) GetOverdue(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.GetOverdueTasks(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// GetUpcoming handles GET /api/v1/tasks/upcoming?days=&assignee=.
func (h *REST) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUpcomingDays {
			h.serviceError(w, r, &domain.ValidationError{Field: "days", Reason: "must be an integer between 1 and " + strconv.Itoa(maxUpcomingDays)})
			return
		}
		days = n
	}
	tasks, err := h.svc.GetUpcomingTasks(r.Context(), days, r.URL.Query().Get("assignee"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.svc.GetTaskByID(r.Context(), id)
	h.respondTask(w, r, id, task, err)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}. Unknown fields are rejected.
func (h *REST) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api-gateway").Start(r.Context(), "api_gateway.update_task")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("task.id", id))

	var patch domain.TaskUpdate
	if !h.decode(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		h.serviceError(w, r, &domain.ValidationError{Field: "body", Reason: "no fields to update"})
		return
	}
	task, err := h.svc.UpdateTask(ctx, id, patch)
	h.respondTask(w, r, id, task, err)
}

// DeleteTask handles DELETE /api/v1/tasks/{id}.
func (h *REST) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.svc.DeleteTask(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if !deleted {
		h.serviceError(w, r, &domain.TaskNotFoundError{TaskID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignTask handles PUT /api/v1/tasks/{id}/assignee.
func (h *REST) AssignTask(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	task, err := h.svc.AssignTask(r.Context(), id, req.AssignedTo)
	h.respondTask(w, r, id, task, err)
}

// UpdateStatus handles PUT /api/v1/tasks/{id}/status.
func (h *REST) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	task, err := h.svc.UpdateTaskStatus(r.Context(), id, req.Status)
	h.respondTask(w, r, id, task, err)
}

// AddTag handles POST /api/v1/tasks/{id}/tags.
func (h *REST) AddTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	task, err := h.svc.AddTagToTask(r.Context(), id, req.Tag)
	h.respondTask(w, r, id, task, err)
}

// RemoveTag handles DELETE /api/v1/tasks/{id}/tags/{tag}.
func (h *REST) RemoveTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.svc.RemoveTagFromTask(r.Context(), id, chi.URLParam(r, "tag"))
	h.respondTask(w, r, id, task, err)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz. It checks the task store.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// respondTask writes task, 404 when the service reported no task, or the
// mapped error.
func (h *REST) respondTask(w http.ResponseWriter, r *http.Request, id string, task *domain.Task, err error) {
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if task == nil {
		h.serviceError(w, r, &domain.TaskNotFoundError{TaskID: id})
		return
	}
	writeJSON(w, http.StatusOK, task)
}
