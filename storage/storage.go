package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskpilot-api/domain"
)

// Partition keys. Users are keyed by email so a duplicate registration fails
// at the store; tasks live in a single partition keyed by task id so update
// and delete can address a task without knowing its owner first.
const (
	usersPartition = "user"
	tasksPartition = "task"
)

var (
	// ErrEmailTaken is returned when a user entity already exists for the email.
	ErrEmailTaken = errors.New("email already exists")
	// ErrUserNotFound is returned when no user entity matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrTaskNotFound is returned when no task entity matches the id.
	ErrTaskNotFound = errors.New("task not found")
)

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	userTable     *aztables.Client
	taskTable     *aztables.Client
	activityQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, usersTable, tasksTable, activityQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	ut := svc.NewClient(usersTable)
	tt := svc.NewClient(tasksTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 1,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, activityQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{userTable: ut, taskTable: tt, activityQueue: aq}, nil
}

type userEntity struct {
	aztables.Entity
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	PasswordHash string `json:"PasswordHash"`
	CreatedAt    string `json:"CreatedAt"`
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	DueDate     string `json:"DueDate"`
	Completed   bool   `json:"Completed"`
	Owner       string `json:"Owner"`
	CreatedAt   string `json:"CreatedAt"`
}

// CreateUser persists a new user. The email doubles as the row key, so the
// uniqueness guarantee comes from the store's insert semantics.
func (s *Storage) CreateUser(ctx context.Context, user domain.User) error {
	ent := userEntity{
		Entity:       aztables.Entity{PartitionKey: usersPartition, RowKey: user.Email},
		ID:           user.ID,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.userTable.AddEntity(ctx, data, nil); err != nil {
		if hasStatus(err, 409) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// GetUserByEmail loads the user entity keyed by the given email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, usersPartition, email, nil)
	if err != nil {
		if hasStatus(err, 404) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return decodeUserEntity(resp.Value)
}

// InsertTask persists a new task entity.
func (s *Storage) InsertTask(ctx context.Context, task domain.Task) error {
	data, err := json.Marshal(encodeTaskEntity(task))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// GetTask loads a single task by id regardless of owner. Callers enforce
// ownership; the store only distinguishes existence.
func (s *Storage) GetTask(ctx context.Context, id string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, tasksPartition, id, nil)
	if err != nil {
		if hasStatus(err, 404) {
			return domain.Task{}, ErrTaskNotFound
		}
		return domain.Task{}, err
	}
	return decodeTaskEntity(resp.Value)
}

// FetchTasks retrieves all tasks for the provided user in creation order.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + tasksPartition + "' and Owner eq '" + userID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// UpdateTask replaces the stored entity for the task.
func (s *Storage) UpdateTask(ctx context.Context, task domain.Task) error {
	data, err := json.Marshal(encodeTaskEntity(task))
	if err != nil {
		return err
	}
	opts := &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeReplace}
	if _, err := s.taskTable.UpdateEntity(ctx, data, opts); err != nil {
		if hasStatus(err, 404) {
			return ErrTaskNotFound
		}
		return err
	}
	return nil
}

// DeleteTask removes the task entity by id.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, tasksPartition, id, nil); err != nil {
		if hasStatus(err, 404) {
			return ErrTaskNotFound
		}
		return err
	}
	return nil
}

func encodeTaskEntity(task domain.Task) taskEntity {
	due := ""
	if task.DueDate != nil {
		due = task.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: tasksPartition, RowKey: task.ID},
		Title:       task.Title,
		Description: task.Description,
		DueDate:     due,
		Completed:   task.Completed,
		Owner:       task.Owner,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Completed:   ent.Completed,
		Owner:       ent.Owner,
	}
	if ent.DueDate != "" {
		due, err := time.Parse(time.RFC3339Nano, ent.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		task.DueDate = &due
	}
	if ent.CreatedAt != "" {
		created, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
		if err != nil {
			return domain.Task{}, err
		}
		task.CreatedAt = created
	}
	return task, nil
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:           ent.ID,
		Name:         ent.Name,
		Email:        ent.RowKey,
		PasswordHash: ent.PasswordHash,
	}
	if ent.CreatedAt != "" {
		created, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
		if err != nil {
			return domain.User{}, err
		}
		user.CreatedAt = created
	}
	return user, nil
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}
