package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: handle, domain, post or identity absent. Expected; not logged as an error.
	ErrNotFound = errors.New("not found")
	// ErrInvalidIdentifier: malformed or pre-epoch snowflake id.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidHandle: handle cannot be parsed into username and domain.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrProtocol: remote server sent something we cannot use, and it is not a plain not-found.
	ErrProtocol = errors.New("protocol error")
	// ErrConstraintViolation: duplicate unique key. Never leaves the logic layer.
	ErrConstraintViolation = errors.New("constraint violation")
)

// WebfingerError is a webfinger response outside the tolerated not-found set.
type WebfingerError struct {
	Url    string
	Status int
	Body   string
}

func (e *WebfingerError) Error() string {
	return fmt.Sprintf("webfinger %s returned status %d: %s", e.Url, e.Status, e.Body)
}

func (e *WebfingerError) Unwrap() error {
	return ErrProtocol
}

// PreconditionError is a local business-rule violation, i.e. a programming error in the caller.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Msg
}

func NewPreconditionError(format string, args ...any) error {
	return &PreconditionError{Msg: fmt.Sprintf(format, args...)}
}
