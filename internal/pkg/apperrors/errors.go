package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrIntegrityViolation ErrorType = "INTEGRITY_VIOLATION"
	ErrTokenNotFound      ErrorType = "TOKEN_NOT_FOUND"
	ErrTokenExpired       ErrorType = "TOKEN_EXPIRED"
	ErrTokenConsumed      ErrorType = "TOKEN_ALREADY_CONSUMED"
	ErrRateLimited        ErrorType = "RATE_LIMITED"
	ErrCsrfMismatch       ErrorType = "CSRF_MISMATCH"
	ErrAuthFailed         ErrorType = "AUTH_FAILED"
	ErrInvalidRequest     ErrorType = "INVALID_REQUEST"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrCsrfMismatch:
		return http.StatusForbidden
	case ErrTokenNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrTokenConsumed:
		return http.StatusConflict
	case ErrTokenExpired:
		return http.StatusGone
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrIntegrityViolation:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrTokenExpired:
		return "This link has expired. Contact the sender for a new link."
	case ErrTokenConsumed:
		return "This document has already been collected using this link."
	case ErrTokenNotFound:
		return "This link is invalid or the document has been removed."
	case ErrRateLimited:
		return "Too many requests. Please try again later."
	case ErrCsrfMismatch:
		return "Refresh the page and submit the form again."
	case ErrAuthFailed:
		return "Check your API key."
	case ErrIntegrityViolation:
		return "Contact an administrator. The audit chain requires inspection."
	default:
		return ""
	}
}
