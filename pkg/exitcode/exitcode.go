// Package exitcode defines the refcast CLI exit-code contract.
package exitcode

import "fmt"

// Exit codes for the refcast CLI
const (
	Success = 0
	// UserError covers unknown resources, missing replacements, malformed arguments
	UserError = 1
	// Unresolved means the invocation completed but left sites needing attention:
	// a partially applied fix or manual-only sites in a report
	Unresolved = 2
	// InternalError covers registry corruption, backup failure, lock failure
	InternalError = 3
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case UserError:
		return "User error"
	case Unresolved:
		return "Completed with unresolved sites"
	case InternalError:
		return "Internal error"
	default:
		return "Unknown exit code"
	}
}

// Error carries an exit code alongside an underlying error so commands can
// signal the contract above through cobra's RunE return path.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return String(e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with an exit code.
func New(code int, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Newf builds an exit-coded error from a format string.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}
