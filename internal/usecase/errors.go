package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrorForbidden       ErrorCode = "FORBIDDEN"
	ErrorNotFound        ErrorCode = "NOT_FOUND"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorUpstreamAuth    ErrorCode = "UPSTREAM_AUTH_FAILURE"
	ErrorPersistence     ErrorCode = "PERSISTENCE_ERROR"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by every service in this package. Message is safe to show
// to end users; Reason is a stable machine-readable tag used in logs and 5xx
// diagnostics.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsUpstream reports whether the error came from the remote generation call,
// including credential rejections.
func (e *Error) IsUpstream() bool {
	return e != nil && (e.Code == ErrorUpstream || e.Code == ErrorUpstreamAuth)
}

func newError(code ErrorCode, reason, message string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Err: err}
}
