package proxy

import (
	"fmt"

	apperrors "github.com/utafrali/tenantgate/pkg/errors"
)

// Proxy error codes. All map to 502.
const (
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeBackendTimeout     = "BACKEND_TIMEOUT"
	CodeInvalidResponse    = "INVALID_RESPONSE"
)

// Error is a failed backend exchange. The wrapped error is logged, never
// sent to the client.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AppError converts e for httputil.WriteError.
func (e *Error) AppError() *apperrors.AppError {
	return apperrors.BadGateway(e.Code, e.Message, e)
}

func unavailable(err error) *Error {
	return &Error{Code: CodeBackendUnavailable, Message: "backend unavailable", Err: err}
}

func timeout(err error) *Error {
	return &Error{Code: CodeBackendTimeout, Message: "backend timed out", Err: err}
}

func invalidResponse(err error) *Error {
	return &Error{Code: CodeInvalidResponse, Message: "backend returned an invalid response", Err: err}
}
