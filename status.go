package anycache

import "fmt"

// Code enumerates the status taxonomy propagated verbatim across the
// worker and master engines and, ultimately, to RPC callers.
type Code uint8

const (
	CodeOK Code = iota
	CodeNotFound
	CodeAlreadyExists
	CodeInvalidArgument
	CodeIOError
	CodePermissionDenied
	CodeNotImplemented
	CodeResourceExhausted
	CodeUnavailable
	CodeInternal
	CodeCancelled
	CodeDeadlineExceeded
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeIOError:
		return "IOError"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeNotImplemented:
		return "NotImplemented"
	case CodeResourceExhausted:
		return "ResourceExhausted"
	case CodeUnavailable:
		return "Unavailable"
	case CodeInternal:
		return "Internal"
	case CodeCancelled:
		return "Cancelled"
	case CodeDeadlineExceeded:
		return "DeadlineExceeded"
	default:
		return "Unknown"
	}
}

// Status is the error type used across every component boundary in
// this module. It carries a code from the taxonomy above plus a
// human-readable message, and satisfies the standard error interface
// so it composes with errors.Is / errors.As.
type Status struct {
	code Code
	msg  string
}

func (s *Status) Error() string {
	if s.msg == "" {
		return s.code.String()
	}
	return fmt.Sprintf("%s: %s", s.code, s.msg)
}

func (s *Status) Code() Code { return s.code }

// Is lets errors.Is(err, anycache.NotFound("")) match on code alone.
func (s *Status) Is(target error) bool {
	other, ok := target.(*Status)
	if !ok {
		return false
	}
	return other.code == s.code
}

func newStatus(code Code, format string, args ...any) *Status {
	return &Status{code: code, msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Status {
	return newStatus(CodeNotFound, format, args...)
}
func AlreadyExists(format string, args ...any) *Status {
	return newStatus(CodeAlreadyExists, format, args...)
}
func InvalidArgument(format string, args ...any) *Status {
	return newStatus(CodeInvalidArgument, format, args...)
}
func IOError(format string, args ...any) *Status {
	return newStatus(CodeIOError, format, args...)
}
func PermissionDenied(format string, args ...any) *Status {
	return newStatus(CodePermissionDenied, format, args...)
}
func NotImplemented(format string, args ...any) *Status {
	return newStatus(CodeNotImplemented, format, args...)
}
func ResourceExhausted(format string, args ...any) *Status {
	return newStatus(CodeResourceExhausted, format, args...)
}
func Unavailable(format string, args ...any) *Status {
	return newStatus(CodeUnavailable, format, args...)
}
func Internal(format string, args ...any) *Status {
	return newStatus(CodeInternal, format, args...)
}
func Cancelled(format string, args ...any) *Status {
	return newStatus(CodeCancelled, format, args...)
}
func DeadlineExceeded(format string, args ...any) *Status {
	return newStatus(CodeDeadlineExceeded, format, args...)
}

// IsNotFound reports whether err is a Status with code NotFound.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsAlreadyExists reports whether err is a Status with code AlreadyExists.
func IsAlreadyExists(err error) bool { return hasCode(err, CodeAlreadyExists) }

func hasCode(err error, code Code) bool {
	s, ok := err.(*Status)
	return ok && s.code == code
}
