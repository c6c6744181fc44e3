package session

import (
	"errors"
	"fmt"
)

const (
	defaultLoginMessage    = "Login failed"
	defaultRegisterMessage = "Registration failed"
)

// ErrSessionExpired is recorded when a credential refresh fails and the
// session is cleared.  It never escapes a background refresh; callers see
// it through State().LastError.
var ErrSessionExpired = errors.New("session: expired")

// AuthenticationError is returned by Login and Register when the authority
// rejects the request (bad credentials, email already taken) or answers
// with a payload that cannot be used.  Message is the server-supplied text
// when there is one.
type AuthenticationError struct {
	Status  int
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// NetworkError is a transport-level failure talking to the authority,
// including the request timeout expiring.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("session: %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
