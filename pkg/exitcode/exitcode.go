// Package exitcode maps failures to the process exit codes lingle reports.
package exitcode

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Code is a process exit code
type Code int

const (
	Success    Code = 0
	General    Code = 1
	Misuse     Code = 2
	Config     Code = 3
	IO         Code = 4
	Permission Code = 5
	Network    Code = 6
	Dependency Code = 7
	State      Code = 8
	Update     Code = 9
	Tmpfs      Code = 10
	Symlink    Code = 11
	ADW        Code = 12
	Instance   Code = 13
)

var descriptions = map[Code]string{
	Success:    "Success",
	General:    "General error",
	Misuse:     "Invalid usage",
	Config:     "Configuration error",
	IO:         "I/O error",
	Permission: "Permission denied",
	Network:    "Network error",
	Dependency: "Missing dependency",
	State:      "Invalid state",
	Update:     "Update failed",
	Tmpfs:      "tmpfs operation failed",
	Symlink:    "Symlink operation failed",
	ADW:        "Auto Delete World failed",
	Instance:   "Instance management failed",
}

// Description returns the human readable meaning of the code
func (c Code) Description() string {
	desc, ok := descriptions[c]
	if !ok {
		return "Unknown error"
	}
	return desc
}

// CodedError attaches an exit code to an error
type CodedError struct {
	Code Code
	Err  error
}

var _ error = (*CodedError)(nil)

func (e *CodedError) Error() string {
	return e.Err.Error()
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// Wrap attaches code to err. A nil err stays nil.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Err: err}
}

// New creates a new eris error carrying code
func New(code Code, msg string) error {
	return &CodedError{Code: code, Err: eris.New(msg)}
}

// Errorf is the formatting variant of New
func Errorf(code Code, format string, args ...interface{}) error {
	return &CodedError{Code: code, Err: eris.Errorf(format, args...)}
}

// From returns the code attached to err. Errors without a code map to General, nil maps to Success.
func From(err error) Code {
	if err == nil {
		return Success
	}

	var coded *CodedError
	if eris.As(err, &coded) {
		return coded.Code
	}
	return General
}

// Format renders err the way lingle prints fatal errors
func Format(err error) string {
	code := From(err)
	return fmt.Sprintf("[ERROR %d] %s: %s", code, code.Description(), err.Error())
}
