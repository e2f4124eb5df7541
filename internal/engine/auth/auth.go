// Package auth holds the authorization rules for task transitions and supervisory decisions.
package auth

import (
	"errors"
	"fmt"

	"huddle/internal/domain"
)

// PermissionError reports an actor acting on something it does not own.
type PermissionError struct {
	Actor      string
	Action     string
	TaskID     string
	AssignedTo string
}

func (e PermissionError) Error() string {
	if e.Actor == "" {
		e.Actor = "anonymous actor"
	}
	if e.TaskID != "" {
		return fmt.Sprintf("%s may not %s task %s assigned to %s", e.Actor, e.Action, e.TaskID, e.AssignedTo)
	}
	return fmt.Sprintf("%s may not %s", e.Actor, e.Action)
}

func (e PermissionError) Unwrap() error { return domain.ErrPermission }

// Policy is the workspace authorization policy: assignees move their own tasks, the supervisor moves
// anything and is the only actor that decides escalations. An empty actor is neither.
type Policy struct {
	Supervisor string
}

func (p Policy) IsSupervisor(actor string) bool {
	return actor != "" && actor == p.Supervisor
}

func (p Policy) CanTransition(actor string, t domain.Task) error {
	if (actor != "" && actor == t.AssignedTo) || p.IsSupervisor(actor) {
		return nil
	}
	return PermissionError{Actor: actor, Action: "move", TaskID: t.ID, AssignedTo: t.AssignedTo}
}

func (p Policy) CanDecide(actor string) error {
	if p.IsSupervisor(actor) {
		return nil
	}
	return PermissionError{Actor: actor, Action: "decide escalations"}
}

// AsPermission extracts a PermissionError from err.
func AsPermission(err error) (PermissionError, bool) {
	var pe PermissionError
	ok := errors.As(err, &pe)
	return pe, ok
}
