package domain

import (
	"encoding/json"
	"time"
)

// EventType classifies a task event.
type EventType string

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventCompleted EventType = "completed"
	EventDeleted   EventType = "deleted"
)

// TaskEvent is an append-only audit record. TaskID is a weak reference: the
// event outlives the task it describes so analytics keep working after a
// soft delete.
type TaskEvent struct {
	ID        int64           `json:"id"`
	TaskID    int64           `json:"task_id"`
	Type      EventType       `json:"event_type"`
	Data      json.RawMessage `json:"event_data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTaskEvent builds an event with a structured snapshot of the triggering
// change. Marshal failures degrade to an empty payload; the event itself is
// never dropped.
func NewTaskEvent(taskID int64, eventType EventType, data any, at time.Time) *TaskEvent {
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	return &TaskEvent{
		TaskID:    taskID,
		Type:      eventType,
		Data:      raw,
		Timestamp: at,
	}
}

// ActivityEntry joins an event with the content of the task it refers to,
// for recent-activity listings.
type ActivityEntry struct {
	TaskEvent
	TaskContent string `json:"task_content"`
}
