package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
	ErrUnavailable     = "UNAVAILABLE"
)

// Domain error codes.
const (
	ErrItemNotFound    = "ITEM_NOT_FOUND"
	ErrCatalogNotFound = "CATALOG_NOT_FOUND"
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrNotAwaiting     = "NOT_AWAITING_INPUT"
)

// ErrorEnvelope is the error body returned by the HTTP API and the host
// bridge. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewItemNotFoundError is returned when a namespace:item pair does not
// resolve. A missing namespace and a missing item produce the same error.
func NewItemNotFoundError(namespace, id string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrItemNotFound,
		Message: fmt.Sprintf("custom item not found: %s:%s", namespace, id),
	}
}

// NewCatalogNotFoundError returns a CATALOG_NOT_FOUND error.
func NewCatalogNotFoundError(name string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCatalogNotFound,
		Message: fmt.Sprintf("namespace %q not found", name),
	}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewSessionNotFoundError returns a SESSION_NOT_FOUND error for user.
func NewSessionNotFoundError(user string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionNotFound,
		Message: fmt.Sprintf("user %q has no open session", user),
	}
}

// NewUnavailableError returns an UNAVAILABLE error for a disabled feature.
func NewUnavailableError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnavailable, Message: msg}
}
