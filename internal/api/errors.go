package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/foxseedlab/coachsession/internal/coaching"
	"github.com/foxseedlab/coachsession/internal/repository"
	"github.com/foxseedlab/coachsession/internal/session"
	"github.com/gin-gonic/gin"
)

// ErrorType is the machine-readable error class in API responses.
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeSessionClosed       ErrorType = "SESSION_CLOSED"
	ErrorTypeOutOfOrderEntry     ErrorType = "OUT_OF_ORDER_ENTRY"
	ErrorTypeAlreadyEnded        ErrorType = "ALREADY_ENDED"
	ErrorTypeActiveSession       ErrorType = "ACTIVE_SESSION_EXISTS"
	ErrorTypeServiceUnavailable  ErrorType = "SERVICE_UNAVAILABLE"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
	// SessionID is set for conflicts that point at an existing session.
	SessionID string
}

func (e *APIError) Error() string {
	return e.Message
}

func newAPIError(errType ErrorType, message string, statusCode int, internal error) *APIError {
	return &APIError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

func badRequest(message string) *APIError {
	return newAPIError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// toAPIError classifies domain and store errors.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var active *coaching.ActiveSessionError
	switch {
	case errors.As(err, &active):
		e := newAPIError(ErrorTypeActiveSession, "Active session exists", http.StatusConflict, err)
		e.SessionID = active.SessionID
		return e
	case errors.Is(err, session.ErrInvalidArgument):
		return newAPIError(ErrorTypeBadRequest, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, repository.ErrNotFound):
		return newAPIError(ErrorTypeNotFound, "Session not found", http.StatusNotFound, err)
	case errors.Is(err, session.ErrSessionClosed):
		return newAPIError(ErrorTypeSessionClosed, "Session has already ended", http.StatusConflict, err)
	case errors.Is(err, session.ErrOutOfOrderEntry):
		return newAPIError(ErrorTypeOutOfOrderEntry, err.Error(), http.StatusConflict, err)
	case errors.Is(err, session.ErrAlreadyEnded):
		return newAPIError(ErrorTypeAlreadyEnded, "Session has already ended", http.StatusConflict, err)
	default:
		return newAPIError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, err)
	}
}

// handleError writes the JSON error body and logs server-side failures.
func handleError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Type == ErrorTypeInternalServerError {
		slog.Error("internal server error", "error", apiErr.Internal, "method", c.Request.Method, "path", c.FullPath())
	}

	body := gin.H{
		"type":    apiErr.Type,
		"message": apiErr.Message,
	}
	if apiErr.SessionID != "" {
		body["session_id"] = apiErr.SessionID
	}
	c.AbortWithStatusJSON(apiErr.StatusCode, gin.H{"error": body})
}
