package domain

import "time"

// Task represents a single to-do item owned by exactly one user.
// Owner is set at creation and never changes afterwards.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Completed   bool       `json:"completed"`
	Owner       string     `json:"owner"`
	CreatedAt   time.Time  `json:"createdAt"`
}
