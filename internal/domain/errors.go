package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrEndpointNotFound means the requested endpoint ID does not exist.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrPrincipalNotFound means the referenced user does not exist.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrUsernameNotFound means the requested remote username is not
	// registered for the endpoint.
	ErrUsernameNotFound = errors.New("endpoint username not found")

	// ErrInvalidLevel indicates a permission level outside view/edit/admin.
	ErrInvalidLevel = errors.New("invalid permission level")

	// ErrAlreadyShared indicates a duplicate grant for (endpoint, grantee).
	ErrAlreadyShared = errors.New("endpoint already shared with this user")

	// ErrShareNotFound means no grant exists for (endpoint, grantee).
	ErrShareNotFound = errors.New("share grant not found")

	// ErrNotPermitted indicates the acting principal lacks the required
	// permission level for the operation.
	ErrNotPermitted = errors.New("not permitted")

	// ErrUnauthenticated indicates a missing, invalid, or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPortsExhausted is returned when no relay port is free within the
	// configured allocation range.
	ErrPortsExhausted = errors.New("no relay port available")

	// ErrTicketSpent means a transfer ticket was already used or expired.
	ErrTicketSpent = errors.New("transfer ticket spent or expired")
)

// Close reason codes carried on fatal websocket session errors. Each
// failure class maps to a distinct, stable code so clients can
// disambiguate "please log in" from "forbidden".
const (
	ReasonBadRequest      = 4000
	ReasonUnauthenticated = 4001
	ReasonForbidden       = 4003
	ReasonNotFound        = 4004
	ReasonSpawnError      = 4005
)

// SessionError wraps a connection-fatal failure with the stable close
// reason code the client receives.
type SessionError struct {
	Op     string
	Reason int
	Err    error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Rejection builds a SessionError for a handshake rejection.
func Rejection(op string, reason int, err error) *SessionError {
	return &SessionError{Op: op, Reason: reason, Err: err}
}

// CloseReason extracts the close code from err, defaulting to
// ReasonBadRequest when err carries no [SessionError].
func CloseReason(err error) int {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonBadRequest
}
