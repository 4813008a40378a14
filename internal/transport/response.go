// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the workflow API.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/formgrid/flowd/internal/observability"
	"github.com/formgrid/flowd/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:       http.StatusBadRequest,
	model.ErrUnauthorized:     http.StatusUnauthorized,
	model.ErrForbidden:        http.StatusForbidden,
	model.ErrNotFound:         http.StatusNotFound,
	model.ErrConflict:         http.StatusConflict,
	model.ErrValidationError:  http.StatusBadRequest,
	model.ErrInternalError:    http.StatusInternalServerError,
	model.ErrStoreUnavailable: http.StatusServiceUnavailable,

	model.ErrDefinitionNotFound:     http.StatusNotFound,
	model.ErrInstanceNotFound:       http.StatusNotFound,
	model.ErrTransitionNotFound:     http.StatusNotFound,
	model.ErrUnauthorizedTransition: http.StatusForbidden,
	model.ErrInvalidStateTransition: http.StatusBadRequest,
	model.ErrMissingRequiredFields:  http.StatusBadRequest,
	model.ErrConcurrencyConflict:    http.StatusConflict,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the mapped HTTP
// status code. A plain error becomes a generic 500. The trace ID of the
// current span is attached so callers can correlate.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}
	if ee.TraceID == "" {
		ee.TraceID = observability.TraceIDFromContext(r.Context())
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	WriteError(w, r, model.NewUnauthorizedError(msg))
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, r *http.Request, msg string) {
	WriteError(w, r, model.NewForbiddenError(msg))
}
