package api

import (
	"context"

	"taskpilot-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	InsertTask(ctx context.Context, task domain.Task) error
	GetTask(ctx context.Context, id string) (domain.Task, error)
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	PublishEvent(ctx context.Context, env domain.EventEnvelope) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// LoginLimiter throttles repeated failed logins per account.
type LoginLimiter interface {
	// Allow reports whether another login attempt may proceed for the account.
	Allow(ctx context.Context, email string) (bool, error)
	// RecordFailure counts a failed attempt against the account.
	RecordFailure(ctx context.Context, email string) error
	// Reset clears the failure counter after a successful login.
	Reset(ctx context.Context, email string) error
}
