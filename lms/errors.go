package lms

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnavailable = errors.New("lms: server unreachable or transport failure")
	ErrTimeout     = errors.New("lms: request timed out")
	ErrBadResponse = errors.New("lms: invalid response format")
	ErrRejected    = errors.New("lms: request rejected by server")
)

// Error wraps a sentinel with the operation that failed.
type Error struct {
	Sentinel error
	Op       string
	Status   int   // HTTP status, 0 for the CLI transport
	Err      error // lower level error, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// PlayerNotFoundError is returned when no player carries the configured name.
type PlayerNotFoundError struct {
	Name      string
	Available []string
}

func (e *PlayerNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("player %q not found: server reports no players", e.Name)
	}
	return fmt.Sprintf("player %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// IsPlayerNotFound checks if an error is (or wraps) a PlayerNotFoundError.
func IsPlayerNotFound(err error) bool {
	var pe *PlayerNotFoundError
	return errors.As(err, &pe)
}
