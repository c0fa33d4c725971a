package domain

import (
	"errors"
	"fmt"
)

// ErrMissingTenant is returned when a call carries no tenant in its context.
var ErrMissingTenant = errors.New("tenant id missing from context")

// TaskNotFoundError is returned when a task ID does not exist for the tenant
// or has been soft-deleted.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// InvalidTransitionError is returned when a status change breaks the task
// state machine.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s cannot move from %s to %s", e.TaskID, e.From, e.To)
}

// ValidationError is returned when an input field holds an unusable value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitExceededError is returned when a tenant exceeds its request budget.
type RateLimitExceededError struct {
	Key   string
	Limit int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: limit is %d", e.Key, e.Limit)
}

// UnknownChannelError is returned when no notification handler is
// registered for a channel.
type UnknownChannelError struct {
	Channel string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("no handler registered for channel %q", e.Channel)
}

// PermanentError wraps a failure that retrying cannot fix, such as a
// malformed reminder.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, a *TaskNotFoundError.
func IsNotFound(err error) bool {
	var nf *TaskNotFoundError
	return errors.As(err, &nf)
}
