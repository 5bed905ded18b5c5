// Package apierror defines the structured error envelope returned by every
// endpoint: {status_code, detail{error, message, ...}, timestamp}. Handlers
// and services return *Error values; the echo error handler renders anything
// else as an opaque internal error so storage and filesystem detail never
// reaches the client.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Error kinds, machine-parseable via detail.error.
const (
	KindValidation         = "validation_error"
	KindBusinessRule       = "business_rule_violation"
	KindDuplicateClaim     = "duplicate_claim"
	KindInvalidFileType    = "invalid_file_type"
	KindFileTooLarge       = "file_too_large"
	KindUnauthorized       = "unauthorized"
	KindPermissionDenied   = "permission_denied"
	KindNotFound           = "not_found"
	KindServiceUnavailable = "service_unavailable"
	KindInternal           = "internal_error"
)

// Detail is the machine-parseable payload inside the envelope. Extra carries
// kind-specific context (offending field, conflicting reference, size limit).
type Detail struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Extra   map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Extra into the detail object alongside error/message.
func (d Detail) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	out["error"] = d.Error
	out["message"] = d.Message
	return json.Marshal(out)
}

// Envelope is the wire shape of every error response.
type Envelope struct {
	StatusCode int       `json:"status_code"`
	Detail     Detail    `json:"detail"`
	Timestamp  time.Time `json:"timestamp"`
}

// Error is a typed API error carrying its HTTP status and detail payload.
type Error struct {
	Status int
	Detail Detail
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Detail.Error, e.Detail.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Detail.Error, e.Detail.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the machine-parseable error kind.
func (e *Error) Kind() string { return e.Detail.Error }

// With attaches kind-specific context to the detail payload.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Detail.Extra == nil {
		e.Detail.Extra = make(map[string]interface{})
	}
	e.Detail.Extra[key] = value
	return e
}

// Wrap records an underlying cause without exposing it to the client.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

func newError(status int, kind, message string) *Error {
	return &Error{Status: status, Detail: Detail{Error: kind, Message: message}}
}

// Validation reports a malformed field. Always rejected before side effects.
func Validation(field, message string) *Error {
	return newError(http.StatusBadRequest, KindValidation, message).With("field", field)
}

// BusinessRule reports a semantically invalid submission, field-qualified so
// callers can distinguish it from structural validation failures.
func BusinessRule(field, message string) *Error {
	return newError(http.StatusBadRequest, KindBusinessRule, message).With("field", field)
}

// DuplicateClaim reports a conflicting prior submission for the same
// (patient, service start date) key.
func DuplicateClaim(existingRef string) *Error {
	return newError(http.StatusConflict, KindDuplicateClaim,
		"A claim for this patient and service date already exists").
		With("existing_claim_reference", existingRef)
}

// InvalidFileType reports a disallowed upload extension.
func InvalidFileType(ext string, allowed []string) *Error {
	return newError(http.StatusBadRequest, KindInvalidFileType,
		fmt.Sprintf("File type %q is not allowed", ext)).
		With("allowed_types", allowed)
}

// FileTooLarge reports an upload exceeding the configured ceiling.
func FileTooLarge(maxBytes int64) *Error {
	return newError(http.StatusRequestEntityTooLarge, KindFileTooLarge,
		fmt.Sprintf("File size exceeds %dMB limit", maxBytes/(1024*1024))).
		With("max_size_bytes", maxBytes)
}

// PermissionDenied names the role the operation requires.
func PermissionDenied(requiredRole string) *Error {
	return newError(http.StatusForbidden, KindPermissionDenied,
		fmt.Sprintf("Insufficient permissions. Required role: %s", requiredRole)).
		With("required_role", requiredRole)
}

// NotFound reports a missing resource.
func NotFound(resource string) *Error {
	return newError(http.StatusNotFound, KindNotFound, fmt.Sprintf("%s not found", resource))
}

// ServiceUnavailable reports resource exhaustion (connection pool, etc).
func ServiceUnavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, KindServiceUnavailable, message)
}

// Internal reports a storage or filesystem failure. The cause is logged by
// the error handler but never serialized.
func Internal(message string, cause error) *Error {
	return newError(http.StatusInternalServerError, KindInternal, message).Wrap(cause)
}

// HTTPErrorHandler renders every error as the structured envelope. Unknown
// errors and echo.HTTPErrors become internal/generic envelopes with the
// original error logged, not leaked.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		env := Envelope{
			StatusCode: http.StatusInternalServerError,
			Detail:     Detail{Error: KindInternal, Message: "An internal error occurred"},
			Timestamp:  time.Now().UTC(),
		}

		var apiErr *Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
			env.StatusCode = apiErr.Status
			env.Detail = apiErr.Detail
		case errors.As(err, &httpErr):
			env.StatusCode = httpErr.Code
			env.Detail = Detail{Error: kindForStatus(httpErr.Code), Message: fmt.Sprintf("%v", httpErr.Message)}
		case errors.Is(err, context.DeadlineExceeded):
			// Pool acquire or query timeout: the service is saturated, not broken.
			env.StatusCode = http.StatusServiceUnavailable
			env.Detail = Detail{Error: KindServiceUnavailable, Message: "Service temporarily unavailable, please retry"}
		}

		if env.StatusCode >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Int("status", env.StatusCode).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(env.StatusCode)
			return
		}
		_ = c.JSON(env.StatusCode, env)
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindPermissionDenied
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindDuplicateClaim
	case http.StatusRequestEntityTooLarge:
		return KindFileTooLarge
	case http.StatusServiceUnavailable:
		return KindServiceUnavailable
	default:
		return KindInternal
	}
}
