package delivery

import "errors"

// Rejections returned by every Service implementation.  A rejected call
// never mutates the record; callers match with errors.Is and decide on the
// user-facing message themselves.
var (
	// ErrForbidden means the actor lacks the role or ownership the action needs.
	ErrForbidden = errors.New("delivery: forbidden")
	// ErrInvalidTransition means the record's current status does not allow
	// the requested change (including any change out of a terminal status).
	ErrInvalidTransition = errors.New("delivery: invalid transition")
	// ErrNotFound means the record does not exist or is not visible to the actor.
	ErrNotFound = errors.New("delivery: not found")
	// ErrInvalidInput means the request payload failed validation.
	ErrInvalidInput = errors.New("delivery: invalid input")
)
