// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTaskNotFound indicates no task with the identifier exists in the workspace.
	ErrTaskNotFound = errors.New("task not found")

	// ErrRuleNotFound indicates no automation rule with the identifier exists in the workspace.
	ErrRuleNotFound = errors.New("automation rule not found")

	// ErrTaskAlreadyExists indicates a task with the same identifier already exists.
	ErrTaskAlreadyExists = errors.New("task already exists")

	// ErrStatusConflict indicates the task status changed between read and write.
	ErrStatusConflict = errors.New("task status changed concurrently")

	// ErrTimerAlreadyActive indicates the compare-and-set on active_timer_start lost.
	ErrTimerAlreadyActive = errors.New("timer already active")

	// ErrTimerNotActive indicates there was no matching open session to close.
	ErrTimerNotActive = errors.New("timer not active")
)

// RecordError wraps repository errors with additional context.
type RecordError struct {
	Op          string // Operation being performed (e.g., "GetByID", "StartTimer")
	Kind        string // Record kind ("task", "rule")
	WorkspaceID string
	ID          string
	Err         error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s in workspace %s: %v", e.Op, e.Kind, e.ID, e.WorkspaceID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task error with context.
func NewTaskError(op, workspaceID, id string, err error) *RecordError {
	return &RecordError{Op: op, Kind: "task", WorkspaceID: workspaceID, ID: id, Err: err}
}

// NewRuleError creates a new rule error with context.
func NewRuleError(op, workspaceID, id string, err error) *RecordError {
	return &RecordError{Op: op, Kind: "rule", WorkspaceID: workspaceID, ID: id, Err: err}
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsRuleNotFound checks if an error indicates a rule was not found.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	return IsTaskNotFound(err) || IsRuleNotFound(err)
}

// IsStatusConflict checks if an error indicates a lost lifecycle compare-and-set.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}
