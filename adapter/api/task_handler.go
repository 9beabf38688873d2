package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/cache"
)

// TaskHandler serves the task CRUD and analytics endpoints.
type TaskHandler struct {
	store  *application.Store
	cache  cache.TaskCache
	logger *slog.Logger
}

// NewTaskHandler creates the handler.
func NewTaskHandler(store *application.Store, c cache.TaskCache, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{store: store, cache: c, logger: logger}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("id must be a positive integer")
	}
	return id, nil
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(r.Context(), w, h.logger, shared.NewValidationError("request body must be valid JSON"))
		return
	}

	task, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Get handles GET /api/v1/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	task, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// List handles GET /api/v1/tasks with status, project, priority and due
// filters.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TaskFilter{
		Status:    q.Get("status"),
		Project:   q.Get("project"),
		DueBucket: q.Get("due"),
	}
	if raw := q.Get("priority"); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, h.logger, shared.NewValidationError("priority filter must be an integer"))
			return
		}
		filter.Priority = priority
	}

	tasks, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// Update handles PUT /api/v1/tasks/{id}. Only whitelisted fields are
// accepted; everything else in the body is ignored.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	var in domain.UpdateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(r.Context(), w, h.logger, shared.NewValidationError("request body must be valid JSON"))
		return
	}

	task, err := h.store.Update(r.Context(), id, in)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Complete handles POST /api/v1/tasks/{id}/complete with an optional
// {"actual_duration": minutes} body.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	var body struct {
		ActualDuration *int `json:"actual_duration"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	task, err := h.store.Complete(r.Context(), id, body.ActualDuration)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/v1/tasks/{id}. The delete is soft: the task
// disappears from reads but its history is retained.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	existed, err := h.store.Delete(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if !existed {
		writeError(r.Context(), w, h.logger, shared.NewNotFoundError("Task", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// PrioritySuggestion handles GET /api/v1/tasks/{id}/priority-suggestion,
// returning the advisory suggestion cached by the sync pipeline, if any.
func (h *TaskHandler) PrioritySuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	raw, ok := h.cache.GetPrioritySuggestion(r.Context(), id)
	if !ok {
		writeError(r.Context(), w, h.logger, shared.NewNotFoundError("Priority suggestion", id))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// RecentActivity handles GET /api/v1/activity.
func (h *TaskHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	activity, err := h.store.RecentActivity(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": activity})
}

// UpcomingDeadlines handles GET /api/v1/deadlines.
func (h *TaskHandler) UpcomingDeadlines(w http.ResponseWriter, r *http.Request) {
	deadlines, err := h.store.UpcomingDeadlines(r.Context(), 10)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deadlines": deadlines})
}

// ProductivityAnalytics handles GET /api/v1/analytics/productivity.
func (h *TaskHandler) ProductivityAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Analytics(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
