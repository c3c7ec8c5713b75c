package workflow

import (
	"fmt"

	"jorfline/internal/domain"
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// InvalidTransitionError reports an action that is not legal from the current status.
type InvalidTransitionError struct {
	From   domain.Status
	Action domain.Action
	Reason string
}

func (e InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition: %s not allowed from %s", e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NotFoundError reports an unknown entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// AuthorizationError reports an actor lacking the role for an action.
type AuthorizationError struct {
	ActorID string
	Action  domain.Action
	Reason  string
}

func (e AuthorizationError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("actor %s is not authorized: %s", e.ActorID, e.Reason)
	}
	return fmt.Sprintf("actor %s may not %s: %s", e.ActorID, e.Action, e.Reason)
}

// UpstreamDependencyError wraps a failure of the directory or a delivery channel.
type UpstreamDependencyError struct {
	Dependency string
	Err        error
}

func (e UpstreamDependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e UpstreamDependencyError) Unwrap() error { return e.Err }
