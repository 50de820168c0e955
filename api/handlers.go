package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskpilot-api/domain"
	"taskpilot-api/storage"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 500

	activityPublishTimeout = 5 * time.Second
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// AuthProvider issues tokens for local accounts and verifies bearer tokens.
type AuthProvider interface {
	Authenticator
	IssueToken(userID string) (string, error)
}

// Register wires up all API routes on the provided Echo instance.
// limiter may be nil, in which case login throttling is disabled.
func Register(e *echo.Echo, store Storage, auth AuthProvider, limiter LoginLimiter, logger *log.Logger) {
	e.POST("/api/auth/register", registerUser(store, auth))
	e.POST("/api/auth/login", loginUser(store, auth, limiter, logger))

	tasks := e.Group("/api/tasks", RequireAuth(auth))
	tasks.GET("", getTasks(store, logger))
	tasks.POST("", createTask(store, logger))
	tasks.PUT("/:id", updateTask(store, logger))
	tasks.DELETE("/:id", deleteTask(store, logger))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func registerUser(store Storage, auth AuthProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if apiErr := decodeBody(c, true, &req); apiErr != nil {
			return respondError(c, apiErr)
		}

		req.Name = strings.TrimSpace(req.Name)
		req.Email = normalizeEmail(req.Email)
		if req.Name == "" || req.Email == "" || req.Password == "" {
			return respondError(c, validationErr("Please provide a name, email and password"))
		}
		if !emailPattern.MatchString(req.Email) {
			return respondError(c, validationErr("Please provide a valid email"))
		}

		hash, err := hashPassword(req.Password)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}

		user := domain.User{
			ID:           uuid.NewString(),
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: hash,
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.CreateUser(c.Request().Context(), user); err != nil {
			if errors.Is(err, storage.ErrEmailTaken) {
				return respondError(c, validationErr("Email already exists"))
			}
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}

		token, err := auth.IssueToken(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}
		return c.JSON(http.StatusOK, tokenResponse{Success: true, Token: token})
	}
}

func loginUser(store Storage, auth AuthProvider, limiter LoginLimiter, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var req loginRequest
		if apiErr := decodeBody(c, true, &req); apiErr != nil {
			return respondError(c, apiErr)
		}
		req.Email = normalizeEmail(req.Email)
		if req.Email == "" || req.Password == "" {
			return respondError(c, validationErr("Please provide an email and password"))
		}

		if limiter != nil {
			allowed, err := limiter.Allow(ctx, req.Email)
			if err != nil {
				// A limiter outage must not lock users out.
				logger.WithError(err).Warn("login limiter unavailable")
			} else if !allowed {
				return respondError(c, rateLimitedErr("Too many login attempts, try again later"))
			}
		}

		user, err := store.GetUserByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				recordLoginFailure(ctx, limiter, logger, req.Email)
				return respondError(c, authenticationErr("Invalid credentials"))
			}
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}

		if !checkPassword(user.PasswordHash, req.Password) {
			recordLoginFailure(ctx, limiter, logger, req.Email)
			return respondError(c, authenticationErr("Invalid credentials"))
		}

		if limiter != nil {
			if err := limiter.Reset(ctx, req.Email); err != nil {
				logger.WithError(err).Warn("login limiter reset failed")
			}
		}

		token, err := auth.IssueToken(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}
		return c.JSON(http.StatusOK, loginResponse{Success: true, Token: token, User: user.Public()})
	}
}

func recordLoginFailure(ctx context.Context, limiter LoginLimiter, logger *log.Logger, email string) {
	if limiter == nil {
		return
	}
	if err := limiter.RecordFailure(ctx, email); err != nil {
		logger.WithError(err).Warn("login limiter record failed")
	}
}

func getTasks(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		if d, ok := c.Get(authDurationKey).(time.Duration); ok {
			metrics.ObserveAuth(d)
		}
		userID := requesterID(c)

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTasks(ctx, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = respondError(c, internalErr("Server Error"))
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, taskListResponse{Success: true, Count: len(tasks), Data: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := requesterID(c)

		var req taskRequest
		if apiErr := decodeBody(c, false, &req); apiErr != nil {
			return respondError(c, apiErr)
		}
		if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
			return respondError(c, validationErr("Please add a title"))
		}

		task := domain.Task{
			ID:        uuid.NewString(),
			Owner:     userID,
			CreatedAt: time.Now().UTC(),
		}
		if apiErr := applyTaskRequest(&task, req); apiErr != nil {
			return respondError(c, apiErr)
		}

		if err := store.InsertTask(c.Request().Context(), task); err != nil {
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}

		publishActivity(store, logger, userID, task, domain.EventTaskCreated)

		return c.JSON(http.StatusCreated, taskResponse{Success: true, Data: task})
	}
}

func updateTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID := requesterID(c)

		task, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				return respondError(c, notFoundErr("Task not found"))
			}
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}
		if task.Owner != userID {
			return respondError(c, authorizationErr("Not authorized to update this task"))
		}

		var req taskRequest
		if apiErr := decodeBody(c, false, &req); apiErr != nil {
			return respondError(c, apiErr)
		}
		if apiErr := applyTaskRequest(&task, req); apiErr != nil {
			return respondError(c, apiErr)
		}

		if err := store.UpdateTask(ctx, task); err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				return respondError(c, notFoundErr("Task not found"))
			}
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}

		publishActivity(store, logger, userID, task, domain.EventTaskUpdated)

		return c.JSON(http.StatusOK, taskResponse{Success: true, Data: task})
	}
}

func deleteTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID := requesterID(c)

		task, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				return respondError(c, notFoundErr("Task not found"))
			}
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}
		if task.Owner != userID {
			return respondError(c, authorizationErr("Not authorized to delete this task"))
		}

		if err := store.DeleteTask(ctx, task.ID); err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				return respondError(c, notFoundErr("Task not found"))
			}
			c.Logger().Error(err)
			return respondError(c, internalErr("Server Error"))
		}

		publishActivity(store, logger, userID, task, domain.EventTaskDeleted)

		return c.JSON(http.StatusOK, taskResponse{Success: true, Data: struct{}{}})
	}
}

// applyTaskRequest copies provided fields onto the task, re-validating field
// constraints. The owner is never touched.
func applyTaskRequest(task *domain.Task, req taskRequest) *apiError {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return validationErr("Please add a title")
		}
		if len(title) > maxTitleLen {
			return validationErr("Title can not be more than 100 characters")
		}
		task.Title = title
	}
	if req.Description != nil {
		if len(*req.Description) > maxDescriptionLen {
			return validationErr("Description can not be more than 500 characters")
		}
		task.Description = *req.Description
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			task.DueDate = nil
		} else {
			due, err := time.Parse(time.RFC3339, *req.DueDate)
			if err != nil {
				return validationErr("Due date must be a valid RFC 3339 timestamp")
			}
			task.DueDate = &due
		}
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}
	return nil
}

// publishActivity sends one best-effort event to the activity queue. Failures
// are logged and never surfaced to the client, and the publish uses its own
// timeout so a slow queue cannot fail the request.
func publishActivity(store Storage, logger *log.Logger, userID string, task domain.Task, eventType string) {
	ctx, cancel := context.WithTimeout(context.Background(), activityPublishTimeout)
	defer cancel()

	ev := domain.Event{
		ID:     uuid.NewString(),
		TaskID: task.ID,
		Type:   eventType,
		Time:   nextTimestamp(),
	}
	if eventType != domain.EventTaskDeleted {
		if data, err := sonic.Marshal(task); err == nil {
			ev.Data = data
		}
	}

	if err := store.PublishEvent(ctx, domain.EventEnvelope{UserID: userID, Event: ev}); err != nil {
		logger.WithError(err).WithFields(log.Fields{
			"task_id": task.ID,
			"type":    eventType,
		}).Warn("activity publish failed")
	}
}

func decodeBody(c echo.Context, strict bool, v any) *apiError {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return validationErr("invalid body")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
