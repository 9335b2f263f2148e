package agent

import (
	"errors"
	"fmt"
)

var ErrEmptyQuestion = errors.New("question is required")

// ConnectionError means the database could not be opened or introspected.
// It is fatal and surfaces before any generation happens.
type ConnectionError struct {
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to database %s: %v", e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// GenerationError means the backend was unreachable or its reply held no
// statement. It is fatal; there is no retry on generation failure.
type GenerationError struct {
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate sql (attempt %d): %v", e.Attempt, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PolicyViolation is a candidate rejected by the read-only guard.
type PolicyViolation struct {
	Attempt int
	SQL     string
	Err     error
}

func (e *PolicyViolation) Error() string {
	return e.Err.Error()
}

func (e *PolicyViolation) Unwrap() error { return e.Err }

// ExecutionError is a candidate the database rejected or that timed out.
type ExecutionError struct {
	Attempt int
	SQL     string
	Err     error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ExhaustedError ends a session whose attempts all failed validation or
// execution. Last holds the final *PolicyViolation or *ExecutionError.
type ExhaustedError struct {
	LastSQL   string
	LastError string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no working query after %d attempts: %s", e.Attempts, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
