package domain

import "time"

// PatternTypeCompletionTime is the only pattern type currently recorded.
const PatternTypeCompletionTime = "completion_time"

// PatternData captures when a task was completed and how the estimate
// compared to reality.
type PatternData struct {
	Hour              int  `json:"hour"`
	Day               int  `json:"day"`
	Priority          int  `json:"priority"`
	EstimatedDuration *int `json:"estimated_duration,omitempty"`
	ActualDuration    *int `json:"actual_duration,omitempty"`
}

// UserPattern is an observational record appended on task completion and
// read in aggregate to bias scheduling.
type UserPattern struct {
	ID          int64       `json:"id"`
	Type        string      `json:"pattern_type"`
	Data        PatternData `json:"pattern_data"`
	Confidence  float64     `json:"confidence_score"`
	LastUpdated time.Time   `json:"last_updated"`
}

// NewCompletionPattern records the completion of a task at the given time.
func NewCompletionPattern(t *Task, completedAt time.Time) *UserPattern {
	return &UserPattern{
		Type: PatternTypeCompletionTime,
		Data: PatternData{
			Hour:              completedAt.Hour(),
			Day:               int(completedAt.Weekday()),
			Priority:          t.Priority,
			EstimatedDuration: t.EstimatedDuration,
			ActualDuration:    t.ActualDuration,
		},
		Confidence:  1.0,
		LastUpdated: completedAt,
	}
}
