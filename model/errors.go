package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Dispatch error codes.
const (
	ErrMalformedBody       = "MALFORMED_BODY"
	ErrProviderNotFound    = "PROVIDER_NOT_FOUND"
	ErrInvalidModel        = "INVALID_MODEL"
	ErrUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ErrUpstreamHTTP        = "UPSTREAM_HTTP"
	ErrUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrResponseShape       = "RESPONSE_SHAPE"
)

// Workflow error codes.
const (
	ErrUnresolvedBinding = "UNRESOLVED_BINDING"
	ErrRunNotActive      = "RUN_NOT_ACTIVE"
	ErrCancelled         = "CANCELLED"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewMalformedBodyError returns a MALFORMED_BODY error naming the offending
// payload text.
func NewMalformedBodyError(payload string, cause error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMalformedBody,
		Message: fmt.Sprintf("request body is not valid JSON: %v (offending text: %q)", cause, payload),
	}
}

// NewProviderNotFoundError returns a PROVIDER_NOT_FOUND error.
func NewProviderNotFoundError(name string, kind GenerationKind) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrProviderNotFound,
		Message: fmt.Sprintf("no active %s provider named %q", kind, name),
	}
}

// NewInvalidModelError returns an INVALID_MODEL error.
func NewInvalidModelError(model, provider string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidModel,
		Message: fmt.Sprintf("model %q is not offered by provider %q", model, provider),
	}
}

// NewUpstreamTimeoutError returns an UPSTREAM_TIMEOUT error.
func NewUpstreamTimeoutError(provider string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUpstreamTimeout,
		Message: fmt.Sprintf("provider %q did not respond within the call deadline", provider),
	}
}

// NewUpstreamHTTPError returns an UPSTREAM_HTTP error carrying the upstream
// status code and response body.
func NewUpstreamHTTPError(provider string, statusCode int, body string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUpstreamHTTP,
		Message: fmt.Sprintf("provider %q returned status %d: %s", provider, statusCode, body),
	}
}

// NewUpstreamUnavailableError returns an UPSTREAM_UNAVAILABLE error for
// transport-level failures (DNS, connection refused).
func NewUpstreamUnavailableError(provider string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUpstreamUnavailable,
		Message: fmt.Sprintf("provider %q could not be reached", provider),
	}
}

// NewResponseShapeError returns a RESPONSE_SHAPE error for responses that do
// not match the provider's configured content path.
func NewResponseShapeError(provider, detail string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrResponseShape,
		Message: fmt.Sprintf("provider %q response did not match the configured content path: %s", provider, detail),
	}
}

// NewUnresolvedBindingError returns an UNRESOLVED_BINDING error.
func NewUnresolvedBindingError(stepID, boundTo string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUnresolvedBinding,
		Message: fmt.Sprintf("step %q binds to step %q which did not produce output", stepID, boundTo),
	}
}

// NewRunNotActiveError returns a RUN_NOT_ACTIVE error.
func NewRunNotActiveError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrRunNotActive, Message: msg}
}

// NewCancelledError returns a CANCELLED error.
func NewCancelledError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCancelled, Message: msg}
}
