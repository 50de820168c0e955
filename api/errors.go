package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// errKind is the closed set of failure categories. Every handler failure is
// one of these; the HTTP mapping happens exactly once, in respondError.
type errKind int

const (
	kindValidation errKind = iota
	kindAuthentication
	kindAuthorization
	kindNotFound
	kindRateLimited
	kindInternal
)

type apiError struct {
	kind    errKind
	message string
}

func (e *apiError) Error() string { return e.message }

func (e *apiError) status() int {
	switch e.kind {
	case kindValidation:
		return http.StatusBadRequest
	case kindAuthentication:
		return http.StatusUnauthorized
	case kindAuthorization:
		// Wrong owner deliberately surfaces as 401, not 403. Kept for
		// compatibility with the existing clients and tests.
		return http.StatusUnauthorized
	case kindNotFound:
		return http.StatusNotFound
	case kindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func validationErr(msg string) *apiError {
	return &apiError{kind: kindValidation, message: msg}
}

func authenticationErr(msg string) *apiError {
	return &apiError{kind: kindAuthentication, message: msg}
}

func authorizationErr(msg string) *apiError {
	return &apiError{kind: kindAuthorization, message: msg}
}

func notFoundErr(msg string) *apiError {
	return &apiError{kind: kindNotFound, message: msg}
}

func rateLimitedErr(msg string) *apiError {
	return &apiError{kind: kindRateLimited, message: msg}
}

func internalErr(msg string) *apiError {
	return &apiError{kind: kindInternal, message: msg}
}

func respondError(c echo.Context, err *apiError) error {
	return c.JSON(err.status(), errorResponse{Success: false, Error: err.message})
}
