package domain

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when a board, column, task or subtask is missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ValidationError reports a rejected field constraint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NetworkError wraps a transport failure talking to the remote store.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// LastColumnError is returned when deleting the only column of a board.
type LastColumnError struct {
	BoardID  string
	ColumnID string
}

func (e *LastColumnError) Error() string {
	return fmt.Sprintf("cannot delete column %s: it is the only column of board %s", e.ColumnID, e.BoardID)
}

// ConflictError is returned when a task status references no column of its board.
type ConflictError struct {
	BoardID string
	Status  string
	Reason  string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("status %q on board %s: %s", e.Status, e.BoardID, e.Reason)
	}
	return fmt.Sprintf("status %q does not match any column of board %s", e.Status, e.BoardID)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
