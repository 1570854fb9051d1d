package dispatch

import (
	"errors"
	"strings"
)

// ErrorCode classifies per-event failures.
type ErrorCode int

const (
	ErrCodeUnknownTag ErrorCode = iota + 100
	ErrCodeUnknownAction
	ErrCodeCommand
	ErrCodePlayback
	ErrCodeDecode
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknownTag:
		return "unknown_tag"
	case ErrCodeUnknownAction:
		return "unknown_action"
	case ErrCodeCommand:
		return "command"
	case ErrCodePlayback:
		return "playback"
	case ErrCodeDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a per-event failure. It never terminates the event loop.
type Error struct {
	Code    ErrorCode
	Op      string // player operation that failed, e.g. "LoadURL"
	Tag     string // tag id of the event, if known
	Kind    string // action kind, if known
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Tag != "" {
		sb.WriteString(e.Tag)
		sb.WriteString(": ")
	}
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on the error code, so errors.Is(err, ErrPlayback) works for any
// playback failure.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrUnknownTag    = &Error{Code: ErrCodeUnknownTag, Message: "tag not found"}
	ErrUnknownAction = &Error{Code: ErrCodeUnknownAction, Message: "action kind unknown"}
	ErrCommand       = &Error{Code: ErrCodeCommand, Message: "command failed"}
	ErrPlayback      = &Error{Code: ErrCodePlayback, Message: "playback failed"}
	ErrDecode        = &Error{Code: ErrCodeDecode, Message: "payload is not valid UTF-8"}
)

// NewUnknownTagError reports a tag id missing from the registry.
func NewUnknownTagError(tag string) *Error {
	return &Error{Code: ErrCodeUnknownTag, Tag: tag, Message: "tag not found"}
}

// NewUnknownActionError reports an entry whose kind has no dispatch behavior.
func NewUnknownActionError(tag, kind string) *Error {
	return &Error{
		Code:    ErrCodeUnknownAction,
		Tag:     tag,
		Kind:    kind,
		Message: `"` + kind + `" command unknown`,
	}
}

// NewCommandError wraps a failed raw command.
func NewCommandError(op, tag string, cause error) *Error {
	return &Error{Code: ErrCodeCommand, Op: op, Tag: tag, Kind: "command", Message: "command failed", Cause: cause}
}

// NewPlaybackError wraps a failed load or playlist request.
func NewPlaybackError(op, tag, kind string, cause error) *Error {
	return &Error{Code: ErrCodePlayback, Op: op, Tag: tag, Kind: kind, Message: "playback failed", Cause: cause}
}

// NewDecodeError reports a payload that is not valid text.
func NewDecodeError(topic string) *Error {
	return &Error{Code: ErrCodeDecode, Op: topic, Message: "payload is not valid UTF-8"}
}

// GetErrorCode extracts the ErrorCode, or 0 if err is not an *Error.
func GetErrorCode(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}
