package api

import "taskpilot-api/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// taskRequest carries create and update payloads. Pointer fields let update
// distinguish "absent" from "set to zero value".
type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"dueDate"`
	Completed   *bool   `json:"completed"`
}

type tokenResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type loginResponse struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    domain.PublicUser `json:"user"`
}

type taskListResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Data    []domain.Task `json:"data"`
}

type taskResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
