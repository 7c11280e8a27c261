package core

import (
	"errors"
	"fmt"

	"github.com/onioktairawan/lordadmin/internal/target"
)

// Outcomes a command can end in besides success. Each one becomes a single
// reply in the originating chat.
var (
	ErrNotAuthorized  = errors.New("not authorized")
	ErrTargetNotFound = target.ErrNotFound
	ErrUsage          = target.ErrNoTarget
	ErrNotFound       = errors.New("no matching record")
)

// CollaboratorError is a failed or timed out platform call
type CollaboratorError struct {
	Action string // platform call, e.g. "ban_member"
	Err    error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func collaboratorError(action string, err error) error {
	return &CollaboratorError{Action: action, Err: err}
}

// NotFoundError reports an unban query that matched no ban record
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNotFound, e.Query)
}

// Is makes errors.Is(err, ErrNotFound) match
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
