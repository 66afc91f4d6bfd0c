// Package services applies tenant and role checks in front of the lifecycle, timer and
// rule engines, and maps their failures to a small set of error classes.
package services

import (
	"errors"
	"fmt"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRuleNameRequired  = errors.New("rule name is required")
	ErrInvalidTrigger    = errors.New("invalid trigger event")
	ErrInvalidRuleSchema = errors.New("rule does not match schema")
	ErrRuleNil           = errors.New("rule cannot be nil")

	// Business Logic Conflicts (409 Conflict).
	ErrRuleAlreadyExists = errors.New("rule already exists")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrRuleNameRequired) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrInvalidRuleSchema) ||
		errors.Is(err, ErrRuleNil) ||
		models.IsValidationError(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrRuleAlreadyExists) ||
		models.IsInvalidTransition(err) ||
		models.IsTimerMisuse(err) ||
		persistence.IsStatusConflict(err)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
