package app

import (
	"errors"
	"fmt"
	"net/http"

	"pratyush/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func permissionDenied(message string) *DomainError {
	return domainError(http.StatusForbidden, "PERMISSION_DENIED", message, nil)
}

func invalidStateTransition(message string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_STATE_TRANSITION", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func conflictError(message string, details any) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, details)
}

func unavailable(message string, details any) *DomainError {
	return domainError(http.StatusServiceUnavailable, "UNAVAILABLE", message, details)
}

// fromStore translates a store error into a DomainError. The raw store
// error never crosses the service boundary.
func fromStore(err error, notFoundMsg string) *DomainError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(notFoundMsg)
	case errors.Is(err, store.ErrConflict):
		return conflictError("Conflicting write", nil)
	case errors.Is(err, store.ErrUnavailable):
		return unavailable("Storage temporarily unavailable", nil)
	default:
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}
}
