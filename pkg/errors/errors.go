package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Error codes for the alert engine. State-machine and authorization
// failures surface to callers; channel failures are logged and swallowed.
const (
	CodeNotFound             = 40400
	CodeForbidden            = 40300
	CodePendingApproval      = 40310
	CodeInvalidCredentials   = 40100
	CodeInvalidOrExpiredCode = 40110
	CodeAlreadyResolved      = 40900
	CodeTransientChannel     = 50310
	CodePermanentChannel     = 50320
)

// Error represents a coded error with an optional stack trace.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Stack   string `json:"stack,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// Wrap wraps an error with message
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
		Stack:   captureStack(),
	}
}

// New creates a new error
func New(message string) *Error {
	return &Error{
		Message: message,
		Stack:   captureStack(),
	}
}

// Taxonomy constructors.

func NotFound(what string) *Error {
	return WithCodef(CodeNotFound, "%s not found", what)
}

func Forbidden(message string) *Error {
	return WithCode(CodeForbidden, message)
}

func PendingApproval(message string) *Error {
	return WithCode(CodePendingApproval, message)
}

func InvalidCredentials() *Error {
	return WithCode(CodeInvalidCredentials, "invalid credentials")
}

func InvalidOrExpiredCode() *Error {
	return WithCode(CodeInvalidOrExpiredCode, "invalid or expired code")
}

func AlreadyResolved(id string) *Error {
	return WithCodef(CodeAlreadyResolved, "alert %s is already resolved", id)
}

func Transient(err error, message string) *Error {
	e := Wrap(err, message)
	if e != nil {
		e.Code = CodeTransientChannel
	}
	return e
}

func Permanent(err error, message string) *Error {
	e := Wrap(err, message)
	if e != nil {
		e.Code = CodePermanentChannel
	}
	return e
}

// GetCode returns the error code, or zero for foreign errors.
func GetCode(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return 0
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code int) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Code == code {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}

// GetMessage returns the error message
func GetMessage(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Cause returns the underlying error
func Cause(err error) error {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Err != nil {
			err = e.Err
		} else {
			return err
		}
	}
	return err
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}
	return strings.TrimSpace(stack)
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
