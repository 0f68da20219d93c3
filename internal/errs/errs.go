// Package errs defines the tagged error type shared by all migration
// components. Every failure that crosses a package boundary is classified
// into a Kind (which subsystem) and a Code (machine-readable reason), so
// the orchestrator and the report can act on errors without string
// matching. Wrapping discipline: construct an *E at the boundary where the
// failure is understood, wrap everything else with fmt.Errorf("...: %w").
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the subsystem an error belongs to.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindDialog    Kind = "dialog"
	KindGroup     Kind = "group"
	KindMigration Kind = "migration"
	KindProgress  Kind = "progress"
	KindRealtime  Kind = "realtime"
)

// Code is the machine-readable reason within a Kind.
type Code string

// Auth codes.
const (
	InvalidCredentials Code = "INVALID_CREDENTIALS"
	InvalidCode        Code = "INVALID_CODE"
	Invalid2FA         Code = "INVALID_2FA"
	SessionExpired     Code = "SESSION_EXPIRED"
	NetworkError       Code = "NETWORK_ERROR"
)

// Dialog codes.
const (
	FetchFailed  Code = "FETCH_FAILED"
	NotFound     Code = "NOT_FOUND"
	AccessDenied Code = "ACCESS_DENIED"
)

// Group codes.
const (
	CreateFailed   Code = "CREATE_FAILED"
	InviteFailed   Code = "INVITE_FAILED"
	UserRestricted Code = "USER_RESTRICTED"
	UserNotFound   Code = "USER_NOT_FOUND"
)

// Migration codes.
const (
	DialogFetchFailed Code = "DIALOG_FETCH_FAILED"
	GroupCreateFailed Code = "GROUP_CREATE_FAILED"
	ForwardFailed     Code = "FORWARD_FAILED"
	Aborted           Code = "ABORTED"
)

// Progress codes.
const (
	FileNotFound  Code = "FILE_NOT_FOUND"
	FileCorrupted Code = "FILE_CORRUPTED"
	WriteFailed   Code = "WRITE_FAILED"
	InvalidFormat Code = "INVALID_FORMAT"
)

// Realtime codes.
const (
	ListenerInitFailed Code = "LISTENER_INIT_FAILED"
	QueueOverflow      Code = "QUEUE_OVERFLOW"
)

// Shared across kinds.
const (
	FloodWait Code = "FLOOD_WAIT"
)

// E is a classified error. Seconds is only meaningful for FLOOD_WAIT.
type E struct {
	Kind    Kind
	Code    Code
	Seconds int
	Msg     string
	Err     error
}

func (e *E) Error() string {
	switch {
	case e.Code == FloodWait:
		return fmt.Sprintf("%s/%s: wait %ds", e.Kind, e.Code, e.Seconds)
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s/%s: %v", e.Kind, e.Code, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Msg)
	default:
		return fmt.Sprintf("%s/%s", e.Kind, e.Code)
	}
}

func (e *E) Unwrap() error { return e.Err }

// New builds a classified error with a message.
func New(kind Kind, code Code, msg string) *E {
	return &E{Kind: kind, Code: code, Msg: msg}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, code Code, msg string, err error) *E {
	return &E{Kind: kind, Code: code, Msg: msg, Err: err}
}

// NewFloodWait builds a flood-wait error for the given kind.
func NewFloodWait(kind Kind, seconds int) *E {
	return &E{Kind: kind, Code: FloodWait, Seconds: seconds}
}

// KindOf returns the Kind of err if it is (or wraps) an *E.
func KindOf(err error) (Kind, bool) {
	var e *E
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// CodeOf returns the Code of err if it is (or wraps) an *E.
func CodeOf(err error) (Code, bool) {
	var e *E
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// FloodWaitSeconds extracts the wait duration from a FLOOD_WAIT error.
func FloodWaitSeconds(err error) (int, bool) {
	var e *E
	if errors.As(err, &e) && e.Code == FloodWait {
		return e.Seconds, true
	}
	return 0, false
}
