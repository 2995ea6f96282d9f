package errors

import "errors"

// Error vars carry the wire-facing message verbatim; handlers map them
// to status codes with errors.Is.
var (
	ErrUnauthenticated   = errors.New("No token provided")
	ErrInvalidCredential = errors.New("Invalid token")
	ErrUpstream          = errors.New("upstream provider unavailable")

	ErrTitleRequired    = errors.New("Title is required")
	ErrInvalidStatus    = errors.New("Invalid status value")
	ErrNoFieldsToUpdate = errors.New("No fields to update")
	ErrValidationFailed = errors.New("Validation failed")

	ErrTaskNotFound  = errors.New("Task not found")
	ErrRouteNotFound = errors.New("Route not found")

	ErrStorage  = errors.New("unexpected storage failure")
	ErrInternal = errors.New("Internal server error")

	ErrBadRequest = errors.New("Invalid request body")
)
