package clierr

import "errors"

// Type categorizes a CLI-facing error for consistent messaging & exit codes.
type Type string

const (
	Validation Type = "validation"
	NotFound   Type = "not_found"
	Auth       Type = "auth"
	Network    Type = "network"
	Exhausted  Type = "exhausted"
	Internal   Type = "internal"
)

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

// ExitCode maps the error category to the process exit status.
func (t Type) ExitCode() int {
	switch t {
	case Validation:
		return 2
	case NotFound:
		return 3
	case Auth:
		return 4
	case Network:
		return 5
	case Exhausted:
		return 6
	default:
		return 1
	}
}

// ExitCode returns the exit status for any error: 0 for nil, the category code
// for a wrapped *Error, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type.ExitCode()
	}
	return 1
}
