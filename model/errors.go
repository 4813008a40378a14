package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest       = "BAD_REQUEST"
	ErrUnauthorized     = "UNAUTHORIZED"
	ErrForbidden        = "FORBIDDEN"
	ErrNotFound         = "NOT_FOUND"
	ErrConflict         = "CONFLICT"
	ErrValidationError  = "VALIDATION_ERROR"
	ErrInternalError    = "INTERNAL_ERROR"
	ErrStoreUnavailable = "STORE_UNAVAILABLE"
)

// Engine-specific error codes.
const (
	ErrDefinitionNotFound     = "DEFINITION_NOT_FOUND"
	ErrInstanceNotFound       = "INSTANCE_NOT_FOUND"
	ErrTransitionNotFound     = "TRANSITION_NOT_FOUND"
	ErrUnauthorizedTransition = "UNAUTHORIZED_TRANSITION"
	ErrInvalidStateTransition = "INVALID_STATE_TRANSITION"
	ErrMissingRequiredFields  = "MISSING_REQUIRED_FIELDS"
	ErrConcurrencyConflict    = "CONCURRENCY_CONFLICT"
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

// FieldError describes a field-level error, used both for definition
// validation issues and for missing required transition fields.
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
		Message: "Workflow definition is invalid",
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

// NewStoreUnavailableError returns a STORE_UNAVAILABLE error. Storage adapters
// return it once their own transient retries are exhausted.
func NewStoreUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStoreUnavailable,
		Message: "The persistence layer is temporarily unavailable",
	}
}

// NewDefinitionNotFoundError returns a DEFINITION_NOT_FOUND error.
func NewDefinitionNotFoundError(workflowID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrDefinitionNotFound,
		Message: fmt.Sprintf("workflow definition %q not found", workflowID),
	}
}

// NewInstanceNotFoundError returns an INSTANCE_NOT_FOUND error.
func NewInstanceNotFoundError(instanceID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInstanceNotFound,
		Message: fmt.Sprintf("workflow instance %q not found", instanceID),
	}
}

// NewTransitionNotFoundError returns a TRANSITION_NOT_FOUND error.
func NewTransitionNotFoundError(transitionID, workflowID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrTransitionNotFound,
		Message: fmt.Sprintf("transition %q not found in workflow %q", transitionID, workflowID),
	}
}

// NewUnauthorizedTransitionError returns an UNAUTHORIZED_TRANSITION error.
func NewUnauthorizedTransitionError(transitionID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUnauthorizedTransition,
		Message: fmt.Sprintf("actor is not permitted to execute transition %q", transitionID),
	}
}

// NewInvalidStateTransitionError returns an INVALID_STATE_TRANSITION error.
func NewInvalidStateTransitionError(transitionID, currentStateID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidStateTransition,
		Message: fmt.Sprintf("transition %q does not originate from current state %q", transitionID, currentStateID),
	}
}

// NewMissingRequiredFieldsError returns a MISSING_REQUIRED_FIELDS error naming
// every missing field key.
func NewMissingRequiredFieldsError(missing []string) *ErrorEnvelope {
	details := make([]FieldError, 0, len(missing))
	for _, key := range missing {
		details = append(details, FieldError{
			Field:   key,
			Code:    "REQUIRED",
			Message: fmt.Sprintf("field %q must be present and non-empty", key),
		})
	}
	return &ErrorEnvelope{
		Code:    ErrMissingRequiredFields,
		Message: "One or more required fields are missing",
		Details: details,
	}
}

// NewConcurrencyConflictError returns a CONCURRENCY_CONFLICT error.
func NewConcurrencyConflictError(instanceID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrConcurrencyConflict,
		Message: fmt.Sprintf("workflow instance %q was modified concurrently; reload and retry", instanceID),
	}
}
