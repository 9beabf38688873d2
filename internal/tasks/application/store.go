// Package application provides the Store, the single writer of task
// records. It orchestrates durable storage, the write-through cache, the
// append-only event log and the broker mirror.
package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/cache"
)

// Store owns all task mutations. Everything else, the intelligence engine
// included, routes writes through here so the event log stays the single
// audit trail.
type Store struct {
	repo      domain.Repository
	cache     cache.TaskCache
	publisher eventbus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore wires the store. publisher may be a NoopPublisher.
func NewStore(repo domain.Repository, c cache.TaskCache, publisher eventbus.Publisher, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		repo:      repo,
		cache:     c,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time. Exposed so collaborators share one
// clock.
func (s *Store) Now() time.Time { return s.now().UTC() }

// Create validates and inserts a new task, logs a created event, populates
// the cache, and returns the task with derived fields computed.
func (s *Store) Create(ctx context.Context, in domain.CreateTaskInput) (*domain.Task, error) {
	in.Sanitize()
	if msgs := in.Validate(); len(msgs) > 0 {
		return nil, shared.NewValidationError(msgs...)
	}

	now := s.Now()
	t := &domain.Task{
		ExternalID:        in.ExternalID,
		Content:           in.Content,
		Description:       in.Description,
		ProjectID:         in.ProjectID,
		Priority:          1,
		EstimatedDuration: in.EstimatedDuration,
		EnergyLevel:       domain.DefaultEnergyLevel,
		ContextTags:       in.ContextTags,
		Labels:            in.Labels,
		Dependencies:      in.Dependencies,
		SyncStatus:        domain.SyncStatusSynced,
		Source:            domain.SourceManual,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.EnergyLevel != nil {
		t.EnergyLevel = *in.EnergyLevel
	}
	if in.Source != "" {
		t.Source = in.Source
	}
	t.DueDate = s.parseDueDate(ctx, in.DueDate, now)

	if _, err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}

	s.recordEvent(ctx, t.ID, domain.EventCreated, map[string]any{
		"content":  t.Content,
		"priority": t.Priority,
		"source":   t.Source,
	})
	s.cache.Set(ctx, t)

	s.logger.InfoContext(ctx, "created task", "task_id", t.ID, "content", t.Content)

	t.ComputeDerived(now)
	return t, nil
}

// Get returns the task with derived fields computed fresh, regardless of
// cache freshness: the cache stores only the raw persisted snapshot.
func (s *Store) Get(ctx context.Context, id int64) (*domain.Task, error) {
	if t, ok := s.cache.Get(ctx, id); ok {
		t.ComputeDerived(s.Now())
		return t, nil
	}

	t, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return nil, shared.NewNotFoundError("Task", id)
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, t)
	t.ComputeDerived(s.Now())
	return t, nil
}

// GetByExternalID resolves a provider identity to the local task.
func (s *Store) GetByExternalID(ctx context.Context, source domain.Source, externalID string) (*domain.Task, error) {
	t, err := s.repo.FindByExternalID(ctx, source, externalID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return nil, shared.NewNotFoundError("Task", externalID)
	}
	if err != nil {
		return nil, err
	}
	t.ComputeDerived(s.Now())
	return t, nil
}

// List returns tasks matching the filter with derived fields computed.
func (s *Store) List(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	if msgs := validateFilter(filter); len(msgs) > 0 {
		return nil, shared.NewValidationError(msgs...)
	}

	tasks, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	for _, t := range tasks {
		t.ComputeDerived(now)
	}
	return tasks, nil
}

// Update applies a whitelisted partial update. The durable write happens
// first; only then is the cache entry invalidated, so readers never observe
// a cache entry older than the last completed write.
func (s *Store) Update(ctx context.Context, id int64, in domain.UpdateTaskInput) (*domain.Task, error) {
	if msgs := in.Validate(); len(msgs) > 0 {
		return nil, shared.NewValidationError(msgs...)
	}

	now := s.Now()
	patch := s.patchFromInput(ctx, in, now)

	ok, err := s.repo.Update(ctx, id, patch, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Zero rows affected: the row is gone or soft-deleted.
		return nil, shared.NewNotFoundError("Task", id)
	}
	s.cache.Invalidate(ctx, id)
	// The mutation is durable at this point; record the audit entry before
	// the re-read so a transient read failure cannot lose it.
	s.recordEvent(ctx, id, domain.EventUpdated, updateSnapshot(in))

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "updated task", "task_id", id)
	return t, nil
}

// Complete marks the task done, records the actual duration when known, and
// feeds the completion into the pattern log.
func (s *Store) Complete(ctx context.Context, id int64, actualDuration *int) (*domain.Task, error) {
	now := s.Now()
	completed := true
	patch := domain.Patch{Completed: &completed, ActualDuration: actualDuration}

	ok, err := s.repo.Update(ctx, id, patch, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NewNotFoundError("Task", id)
	}
	s.cache.Invalidate(ctx, id)

	data := map[string]any{}
	if actualDuration != nil {
		data["actual_duration"] = *actualDuration
	}
	s.recordEvent(ctx, id, domain.EventCompleted, data)

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendPattern(ctx, domain.NewCompletionPattern(t, now)); err != nil {
		s.logger.WarnContext(ctx, "failed to record completion pattern", "task_id", id, "error", err)
	}

	s.logger.InfoContext(ctx, "completed task", "task_id", id)
	return t, nil
}

// Delete soft-deletes the task: the row is retained for analytics and the
// event history is never removed. Returns whether the task existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	now := s.Now()
	deleted := domain.SyncStatusDeleted
	completed := true
	patch := domain.Patch{SyncStatus: &deleted, Completed: &completed}

	ok, err := s.repo.Update(ctx, id, patch, now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	s.cache.Invalidate(ctx, id)

	s.recordEvent(ctx, id, domain.EventDeleted, map[string]any{})
	s.logger.InfoContext(ctx, "soft-deleted task", "task_id", id)
	return true, nil
}

// AppendPattern records an aggregate pattern row on behalf of the engine.
func (s *Store) AppendPattern(ctx context.Context, p *domain.UserPattern) error {
	return s.repo.AppendPattern(ctx, p)
}

// Patterns returns all recorded patterns of the given type.
func (s *Store) Patterns(ctx context.Context, patternType string) ([]domain.UserPattern, error) {
	return s.repo.PatternsByType(ctx, patternType)
}

// CompletionEventsSince returns completion events recorded after since.
func (s *Store) CompletionEventsSince(ctx context.Context, since time.Time) ([]domain.TaskEvent, error) {
	return s.repo.EventsSince(ctx, domain.EventCompleted, since)
}

// CountActive returns the number of open tasks.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	return s.repo.CountActive(ctx)
}

// CountOverdue returns the number of open tasks past their due date.
func (s *Store) CountOverdue(ctx context.Context) (int, error) {
	return s.repo.CountOverdue(ctx, s.Now())
}

// CountDueToday returns the number of open tasks due today.
func (s *Store) CountDueToday(ctx context.Context) (int, error) {
	return s.repo.CountDueToday(ctx, s.Now())
}

// CountHighPriority returns the number of open tasks with priority >= 4.
func (s *Store) CountHighPriority(ctx context.Context) (int, error) {
	return s.repo.CountHighPriority(ctx)
}

// RecentActivity returns the newest event-log entries joined with task
// content.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	return s.repo.RecentActivity(ctx, limit)
}

// UpcomingDeadlines returns open tasks with a future due date, soonest
// first.
func (s *Store) UpcomingDeadlines(ctx context.Context, limit int) ([]*domain.Task, error) {
	tasks, err := s.repo.UpcomingDeadlines(ctx, s.Now(), limit)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	for _, t := range tasks {
		t.ComputeDerived(now)
	}
	return tasks, nil
}

// ProductivityAnalytics summarizes completions over a trailing period of
// "day", "week" (default) or "month".
type ProductivityAnalytics struct {
	Period            string  `json:"period"`
	CompletedTasks    int     `json:"completed_tasks"`
	TotalTasks        int     `json:"total_tasks"`
	CompletionRate    float64 `json:"completion_rate"`
	AvgCompletionTime float64 `json:"avg_completion_time"`
}

// Analytics computes the productivity summary for the period.
func (s *Store) Analytics(ctx context.Context, period string) (*ProductivityAnalytics, error) {
	end := s.Now()
	var start time.Time
	switch period {
	case "day":
		start = end.AddDate(0, 0, -1)
	case "month":
		start = end.AddDate(0, 0, -30)
	case "", "week":
		period = "week"
		start = end.AddDate(0, 0, -7)
	default:
		return nil, shared.NewValidationError("period must be one of: day, week, month")
	}

	completed, err := s.repo.CountCompletedBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountCreatedBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	avg, err := s.repo.AvgActualDurationBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	rate := 0.0
	if total > 0 {
		rate = float64(completed) / float64(total) * 100
	}

	return &ProductivityAnalytics{
		Period:            period,
		CompletedTasks:    completed,
		TotalTasks:        total,
		CompletionRate:    rate,
		AvgCompletionTime: avg,
	}, nil
}

// CountCompletedBetween exposes the raw completion count for the engine.
func (s *Store) CountCompletedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return s.repo.CountCompletedBetween(ctx, from, to)
}

// CountCreatedBetween exposes the raw creation count for the engine.
func (s *Store) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return s.repo.CountCreatedBetween(ctx, from, to)
}

func (s *Store) parseDueDate(ctx context.Context, raw string, now time.Time) *time.Time {
	if raw == "" {
		return nil
	}
	due, err := domain.ParseDueDate(raw, now)
	if err != nil {
		// Tolerant-parse policy: the write proceeds with the field unset.
		s.logger.WarnContext(ctx, "due date unparseable, storing unset", "value", raw, "error", err)
		return nil
	}
	return due
}

func (s *Store) patchFromInput(ctx context.Context, in domain.UpdateTaskInput, now time.Time) domain.Patch {
	patch := domain.Patch{
		Priority:          in.Priority,
		Completed:         in.Completed,
		EstimatedDuration: in.EstimatedDuration,
		EnergyLevel:       in.EnergyLevel,
		ContextTags:       in.ContextTags,
		Labels:            in.Labels,
	}
	if in.Content != nil {
		content := domain.SanitizeText(*in.Content, domain.ContentMaxLength)
		patch.Content = &content
	}
	if in.Description != nil {
		description := domain.SanitizeText(*in.Description, domain.DescriptionMaxLength)
		patch.Description = &description
	}
	if in.DueDate != nil {
		if due := s.parseDueDate(ctx, *in.DueDate, now); due != nil {
			patch.DueDate = due
		} else {
			patch.ClearDueDate = true
		}
	}
	return patch
}

func (s *Store) recordEvent(ctx context.Context, taskID int64, eventType domain.EventType, data map[string]any) {
	e := domain.NewTaskEvent(taskID, eventType, data, s.Now())
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to append task event",
			"task_id", taskID, "event_type", eventType, "error", err)
		return
	}
	if err := s.publisher.PublishTaskEvent(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to mirror task event to broker",
			"task_id", taskID, "event_type", eventType, "error", err)
	}
}

func updateSnapshot(in domain.UpdateTaskInput) map[string]any {
	data := map[string]any{}
	if in.Content != nil {
		data["content"] = *in.Content
	}
	if in.Description != nil {
		data["description"] = *in.Description
	}
	if in.Priority != nil {
		data["priority"] = *in.Priority
	}
	if in.DueDate != nil {
		data["due_date"] = *in.DueDate
	}
	if in.Completed != nil {
		data["completed"] = *in.Completed
	}
	if in.EstimatedDuration != nil {
		data["estimated_duration"] = *in.EstimatedDuration
	}
	if in.EnergyLevel != nil {
		data["energy_level"] = *in.EnergyLevel
	}
	if in.ContextTags != nil {
		data["context_tags"] = *in.ContextTags
	}
	if in.Labels != nil {
		data["labels"] = *in.Labels
	}
	return data
}

func validateFilter(filter domain.TaskFilter) []string {
	var msgs []string
	if filter.Status != "" && filter.Status != domain.StatusActive && filter.Status != domain.StatusCompleted {
		msgs = append(msgs, "status filter must be one of: active, completed")
	}
	if filter.Priority != 0 && (filter.Priority < domain.PriorityMin || filter.Priority > domain.PriorityMax) {
		msgs = append(msgs, "priority filter must be between 1 and 5")
	}
	switch filter.DueBucket {
	case "", domain.DueBucketToday, domain.DueBucketWeek, domain.DueBucketOverdue:
	default:
		msgs = append(msgs, "due date filter must be one of: today, week, overdue")
	}
	return msgs
}
