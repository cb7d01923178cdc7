package handlers

import (
	"errors"
	"net/http"

	"github.com/markdave123-py/clausewise/internal/orchestrator"
	"github.com/markdave123-py/clausewise/internal/registry"
	"github.com/markdave123-py/clausewise/internal/services"
)

// APIError is the JSON error body every endpoint returns.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	// Query is the retained query text for failed query cycles.
	Query string `json:"query,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func NewBadRequestError(message, details string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message, Details: details}
}

func NewNotFoundError(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func NewConflictError(code, message string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: code, Message: message}
}

func NewInternalError(details string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "internal server error", Details: details}
}

func NewServiceUnavailableError(message string) *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE", Message: message}
}

// errorFor maps domain errors to their HTTP representation.
func errorFor(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rej orchestrator.Rejection
	if errors.As(err, &rej) {
		return rejectionError(rej)
	}

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "document not found", Details: err.Error()}
	case errors.Is(err, orchestrator.ErrDocumentInUse):
		return &APIError{Status: http.StatusConflict, Code: "DOCUMENT_IN_USE", Message: "document is part of the running query", Details: err.Error()}
	case errors.Is(err, services.ErrFileTooLarge):
		return &APIError{Status: http.StatusRequestEntityTooLarge, Code: "FILE_TOO_LARGE", Message: "file too large", Details: err.Error()}
	case errors.Is(err, orchestrator.ErrSuperseded):
		return &APIError{Status: http.StatusConflict, Code: "superseded", Message: "query was replaced by a newer one"}
	case errors.Is(err, orchestrator.ErrClosed):
		return NewServiceUnavailableError("query service is shutting down")
	}
	return NewInternalError(err.Error())
}

func rejectionError(r orchestrator.Rejection) *APIError {
	e := &APIError{Code: string(r), Message: r.Error()}
	switch r {
	case orchestrator.RejectInFlight:
		e.Status = http.StatusConflict
	case orchestrator.RejectNoDocuments:
		e.Status = http.StatusPreconditionFailed
	default:
		e.Status = http.StatusBadRequest
	}
	return e
}

// failureError renders a Failed cycle.
func failureError(st orchestrator.State) *APIError {
	e := &APIError{Status: http.StatusBadGateway, Message: "query failed", Query: st.Query}
	if st.Failure == nil {
		e.Code = string(orchestrator.FailureUpstream)
		return e
	}
	e.Code = string(st.Failure.Kind)
	e.Details = st.Failure.Reason
	if st.Failure.Kind == orchestrator.FailureTimeout {
		e.Status = http.StatusGatewayTimeout
		e.Message = "query timed out"
	}
	return e
}
