package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
)

// IntelligenceHandler serves the engine's read and reschedule endpoints.
type IntelligenceHandler struct {
	store  *application.Store
	engine *intelligence.Engine
	logger *slog.Logger
}

// NewIntelligenceHandler creates the handler.
func NewIntelligenceHandler(store *application.Store, engine *intelligence.Engine, logger *slog.Logger) *IntelligenceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntelligenceHandler{store: store, engine: engine, logger: logger}
}

// Priorities handles GET /api/v1/intelligence/priorities.
func (h *IntelligenceHandler) Priorities(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.engine.SuggestPriorities(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// DailySchedule handles GET /api/v1/intelligence/schedule?date=YYYY-MM-DD,
// defaulting to today.
func (h *IntelligenceHandler) DailySchedule(w http.ResponseWriter, r *http.Request) {
	date := h.engine.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(r.Context(), w, h.logger, shared.NewValidationError("date must be formatted YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	schedule, err := h.engine.SuggestDailySchedule(r.Context(), date)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// OverdueAnalysis handles GET /api/v1/intelligence/overdue.
func (h *IntelligenceHandler) OverdueAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.engine.AnalyzeOverdue(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// SmartReschedule handles POST /api/v1/intelligence/reschedule/{id} with a
// {"new_date": "..."} body. The response's rescheduled flag tells the
// caller whether the due date was already moved.
func (h *IntelligenceHandler) SmartReschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	var body struct {
		NewDate string `json:"new_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewDate == "" {
		writeError(r.Context(), w, h.logger, shared.NewValidationError("new_date is required"))
		return
	}

	newDate, err := parseDate(body.NewDate)
	if err != nil {
		writeError(r.Context(), w, h.logger, shared.NewValidationError("new_date could not be parsed as a date"))
		return
	}

	result, err := h.engine.SmartReschedule(r.Context(), id, newDate)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AnalyzeTask handles POST /api/v1/tasks/{id}/analyze. Suggestions are
// returned advisory-only; when auto_apply is set the merged update is
// applied through the store before responding.
func (h *IntelligenceHandler) AnalyzeTask(w http.ResponseWriter, r *http.Request) {
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

	analysis, err := h.engine.AnalyzeNewTask(r.Context(), task)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	if analysis.AutoApply && analysis.Updates != nil {
		if _, err := h.store.Update(r.Context(), id, *analysis.Updates); err != nil {
			writeError(r.Context(), w, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, analysis)
}

// FullContext handles GET /api/v1/intelligence/context.
func (h *IntelligenceHandler) FullContext(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.engine.BuildFullContext(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// Patterns handles GET /api/v1/intelligence/patterns.
func (h *IntelligenceHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.CompletionPatterns(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Capacity handles GET /api/v1/intelligence/capacity.
func (h *IntelligenceHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	capacity, err := h.engine.AnalyzeCapacity(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, capacity)
}

// ProductivityScore handles GET /api/v1/intelligence/score.
func (h *IntelligenceHandler) ProductivityScore(w http.ResponseWriter, r *http.Request) {
	score, err := h.engine.ProductivityScore(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"productivity_score": score})
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
