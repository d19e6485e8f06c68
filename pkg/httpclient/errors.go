package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/tenantgate/pkg/errors"
)

// downstreamError mirrors the httputil error envelope used by internal services.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response body and maps it
// to an AppError. Structured error envelopes keep their code; anything else
// is classified by status alone.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", http.StatusText(resp.StatusCode)
	var env downstreamError
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
	}
	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, "resource")
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusServiceUnavailable:
		return &apperrors.AppError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: qualified,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	case status >= 500:
		return apperrors.BadGateway("BAD_GATEWAY", qualified, fmt.Errorf("status %d code %q", status, code))
	default:
		if code == "" {
			code = "DOWNSTREAM_ERROR"
		}
		return &apperrors.AppError{Code: code, Message: qualified, Status: status}
	}
}
