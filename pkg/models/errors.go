package models

import (
	"errors"
	"fmt"
)

// Engine error kinds. Everything here is scoped to a single task or rule operation.
var (
	// ErrInvalidTransition is an illegal move in the task lifecycle graph. Never retried.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation is a missing or malformed input surfaced to the caller.
	ErrValidation = errors.New("validation error")

	// ErrSessionAlreadyActive is returned when a timer is started twice.
	ErrSessionAlreadyActive = errors.New("timer session already active")

	// ErrNoActiveSession is returned when stopping a timer that is not running.
	ErrNoActiveSession = errors.New("no active timer session")

	// ErrRuleCycleDetected marks automation propagation that hit the depth cap.
	ErrRuleCycleDetected = errors.New("rule cycle detected")

	// ErrAuthorization is a permission or tenant isolation violation.
	ErrAuthorization = errors.New("not authorized")
)

// TransitionError describes an illegal status move.
type TransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
	Op     string
}

func (e *TransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: cannot move task %s from %s to %s", e.Op, e.TaskID, e.From, e.To)
	}

	return fmt.Sprintf("cannot move task %s from %s to %s", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewTransitionError creates a transition error for op.
func NewTransitionError(op, taskID string, from, to TaskStatus) *TransitionError {
	return &TransitionError{Op: op, TaskID: taskID, From: from, To: to}
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError is raised before any engine logic runs.
type AuthorizationError struct {
	UserID      string
	WorkspaceID string
	Action      string
	Reason      string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %q may not %s in workspace %q: %s", e.UserID, e.Action, e.WorkspaceID, e.Reason)
}

func (e *AuthorizationError) Unwrap() error {
	return ErrAuthorization
}

// ActionError wraps the failure of one action in a rule's chain.
type ActionError struct {
	RuleID string
	Index  int
	Type   ActionType
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("rule %s action %d (%s): %v", e.RuleID, e.Index, e.Type, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// IsInvalidTransition checks if an error is an illegal lifecycle move.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsValidationError checks if an error is a validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAuthorizationError checks if an error is a permission or tenant violation.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

// IsTimerMisuse checks if an error is a timer start/stop misuse.
func IsTimerMisuse(err error) bool {
	return errors.Is(err, ErrSessionAlreadyActive) || errors.Is(err, ErrNoActiveSession)
}

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	return IsInvalidTransition(err) || IsValidationError(err) || IsAuthorizationError(err) ||
		IsTimerMisuse(err) || errors.Is(err, ErrRuleCycleDetected)
}
