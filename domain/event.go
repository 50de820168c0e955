package domain

import "github.com/bytedance/sonic"

// Event types published to the activity queue.
const (
	EventTaskCreated = "task-created"
	EventTaskUpdated = "task-updated"
	EventTaskDeleted = "task-deleted"
)

// Event records a single task mutation for downstream consumers.
type Event struct {
	ID     string                 `json:"id"`
	TaskID string                 `json:"taskId"`
	Type   string                 `json:"type"`
	Data   sonic.NoCopyRawMessage `json:"data,omitempty"`
	Time   int64                  `json:"time"`
}

// EventEnvelope wraps an event with the user who performed it.
type EventEnvelope struct {
	UserID string `json:"userId"`
	Event  Event  `json:"event"`
}
