package domain

import (
	"context"
	"errors"
	"time"
)

// ErrTaskNotFound is returned by repositories when a task does not exist or
// has been soft-deleted.
var ErrTaskNotFound = errors.New("task not found")

// Due-date bucket filters.
const (
	DueBucketToday   = "today"
	DueBucketWeek    = "week"
	DueBucketOverdue = "overdue"
)

// Status filters.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// TaskFilter narrows Find results. Zero values mean "no filter".
type TaskFilter struct {
	Status    string
	Project   string
	Priority  int
	DueBucket string
}

// Repository is the storage contract for tasks, events and patterns.
// Soft-deleted tasks are invisible to every lookup except the aggregate
// analytics queries.
//
// Results from Find and UpcomingDeadlines are ordered by priority ascending
// then due date ascending; priority is the numeric column value, so
// priority=1 sorts before priority=5. This replicates the store's
// "ORDER BY priority, due_date" contract and is intentionally not a
// highest-priority-first ordering.
type Repository interface {
	Insert(ctx context.Context, t *Task) (int64, error)
	FindByID(ctx context.Context, id int64) (*Task, error)
	FindByExternalID(ctx context.Context, source Source, externalID string) (*Task, error)
	Find(ctx context.Context, filter TaskFilter) ([]*Task, error)

	// Update applies the patch to one row. A false return means zero rows
	// were affected: the race-detection signal that callers map to a
	// not-found outcome.
	Update(ctx context.Context, id int64, patch Patch, updatedAt time.Time) (bool, error)

	CountActive(ctx context.Context) (int, error)
	CountOverdue(ctx context.Context, now time.Time) (int, error)
	CountDueToday(ctx context.Context, now time.Time) (int, error)
	CountHighPriority(ctx context.Context) (int, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	CountCompletedBetween(ctx context.Context, from, to time.Time) (int, error)
	AvgActualDurationBetween(ctx context.Context, from, to time.Time) (float64, error)
	UpcomingDeadlines(ctx context.Context, now time.Time, limit int) ([]*Task, error)

	AppendEvent(ctx context.Context, e *TaskEvent) error
	RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error)
	EventsSince(ctx context.Context, eventType EventType, since time.Time) ([]TaskEvent, error)

	AppendPattern(ctx context.Context, p *UserPattern) error
	PatternsByType(ctx context.Context, patternType string) ([]UserPattern, error)

	Close() error
}
