package domain

import (
	"fmt"
	"strings"
)

// The engine models every predictable rejection as a typed error value so the
// presentation layer can map each rejection to an actionable message. Only
// infrastructure failures surface as untyped errors.

// ErrNotFound is returned when a case or stage record is absent.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrTransitionNotAllowed is returned when the requested target state is not
// an edge of the current state in the case method's lifecycle graph.
type ErrTransitionNotAllowed struct {
	Method    Method
	From      State
	Attempted State
	Allowed   []State
}

func (e ErrTransitionNotAllowed) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("transition %s -> %s not allowed for %s: %s is terminal",
			e.From, e.Attempted, e.Method, e.From)
	}
	return fmt.Sprintf("transition %s -> %s not allowed for %s: allowed next states are %s",
		e.From, e.Attempted, e.Method, strings.Join(allowed, ", "))
}

// ErrPrerequisiteNotMet is returned when a transition guard finds a required
// upstream record or threshold missing.
type ErrPrerequisiteNotMet struct {
	Target State
	Reason string
}

func (e ErrPrerequisiteNotMet) Error() string {
	return fmt.Sprintf("prerequisite for %s not met: %s", e.Target, e.Reason)
}

// ErrPermissionDenied is returned when the actor role lacks the baseline
// capability for the attempted action.
type ErrPermissionDenied struct {
	Role   Role
	Action string
	Kind   StageKind
}

func (e ErrPermissionDenied) Error() string {
	return fmt.Sprintf("role %s may not %s %s records", e.Role, e.Action, e.Kind)
}

// ErrDownstreamBlocked is returned when downstream stage data exists and the
// actor role lacks the admin override capability.
type ErrDownstreamBlocked struct {
	Kind     StageKind
	Blocking []StageKind
}

func (e ErrDownstreamBlocked) Error() string {
	blocking := make([]string, 0, len(e.Blocking))
	for _, k := range e.Blocking {
		blocking = append(blocking, string(k))
	}
	return fmt.Sprintf("downstream data exists for %s (%s); admin override required",
		e.Kind, strings.Join(blocking, ", "))
}

// ErrDuplicateRequest is returned when an idempotency token was already
// consumed within its validity window.
type ErrDuplicateRequest struct {
	Token string
}

func (e ErrDuplicateRequest) Error() string {
	return fmt.Sprintf("idempotency token %s already consumed", e.Token)
}

// ErrValidation is returned when a request payload violates the per-stage
// schema, such as a missing mutation reason.
type ErrValidation struct {
	Field  string
	Reason string
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
