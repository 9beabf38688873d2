// Package domain defines the task records owned by the Task Store: the task
// itself, its append-only event log and the completion patterns observed by
// the intelligence engine.
package domain

import (
	"math"
	"time"
)

// Source identifies where a task originated.
type Source string

const (
	SourceManual  Source = "manual"
	SourceTodoist Source = "todoist"
	SourceLinear  Source = "linear"
)

// SyncStatus is the lifecycle tag of a task, distinct from completion state.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusDeleted SyncStatus = "deleted"
)

// Validation constraints.
const (
	ContentMaxLength     = 1000
	DescriptionMaxLength = 5000
	PriorityMin          = 1
	PriorityMax          = 5
	EnergyLevelMin       = 1
	EnergyLevelMax       = 5
	DefaultEnergyLevel   = 3
)

// Task is a unit of work tracked by the system. It is locally authoritative
// even when mirrored from an external provider.
type Task struct {
	ID                int64      `json:"id"`
	ExternalID        string     `json:"external_id,omitempty"`
	Content           string     `json:"content"`
	Description       string     `json:"description,omitempty"`
	ProjectID         string     `json:"project_id,omitempty"`
	Priority          int        `json:"priority"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	EstimatedDuration *int       `json:"estimated_duration,omitempty"`
	ActualDuration    *int       `json:"actual_duration,omitempty"`
	EnergyLevel       int        `json:"energy_level"`
	ContextTags       []string   `json:"context_tags,omitempty"`
	Labels            []string   `json:"labels,omitempty"`
	Dependencies      []int64    `json:"dependencies,omitempty"`
	Completed         bool       `json:"completed"`
	SyncStatus        SyncStatus `json:"sync_status"`
	Source            Source     `json:"source"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Derived fields, recomputed on every read and never persisted.
	IsOverdue    bool    `json:"is_overdue"`
	DaysUntilDue *int    `json:"days_until_due,omitempty"`
	UrgencyScore float64 `json:"urgency_score"`
}

// IsActive reports whether the task is still open: not completed and not
// soft-deleted.
func (t *Task) IsActive() bool {
	return !t.Completed && t.SyncStatus != SyncStatusDeleted
}

// EstimatedMinutes returns the estimated duration, defaulting to 60 minutes
// when none is set.
func (t *Task) EstimatedMinutes() int {
	if t.EstimatedDuration != nil {
		return *t.EstimatedDuration
	}
	return 60
}

// ComputeDerived fills in IsOverdue, DaysUntilDue and UrgencyScore relative
// to now. Derived fields are always recomputed at read time, regardless of
// cache freshness.
func (t *Task) ComputeDerived(now time.Time) {
	t.IsOverdue = false
	t.DaysUntilDue = nil
	t.UrgencyScore = float64(t.Priority)

	if t.DueDate == nil {
		return
	}

	daysUntil := t.DueDate.Sub(now).Hours() / 24
	rounded := int(math.Round(daysUntil))
	t.DaysUntilDue = &rounded
	t.IsOverdue = !t.Completed && t.DueDate.Before(now)

	switch {
	case daysUntil < 0:
		t.UrgencyScore += 10
	case daysUntil < 1:
		t.UrgencyScore += 5
	case daysUntil < 3:
		t.UrgencyScore += 3
	}
}

// DependsOn reports whether the task lists id as a dependency.
func (t *Task) DependsOn(id int64) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}
