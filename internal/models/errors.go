package models

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrExtractionFailure    = errors.New("text extraction failed")
	ErrNoDocumentsAvailable = errors.New("no documents available")
	ErrModelNotFit          = errors.New("model not fit")
	ErrInvalidClusterCount  = errors.New("invalid cluster count")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrPersistenceFailure   = errors.New("persistence failure")
	ErrInvalidField         = errors.New("invalid field")
	ErrInvalidInput         = errors.New("invalid input")
)

var reasons = []struct {
	err    error
	reason string
	status int
}{
	{ErrUnsupportedFileType, "unsupported_file_type", http.StatusUnsupportedMediaType},
	{ErrExtractionFailure, "extraction_failure", http.StatusUnprocessableEntity},
	{ErrNoDocumentsAvailable, "no_documents_available", http.StatusConflict},
	{ErrModelNotFit, "model_not_fit", http.StatusConflict},
	{ErrInvalidClusterCount, "invalid_cluster_count", http.StatusBadRequest},
	{ErrDocumentNotFound, "document_not_found", http.StatusNotFound},
	{ErrPersistenceFailure, "persistence_failure", http.StatusInternalServerError},
	{ErrInvalidField, "invalid_field", http.StatusBadRequest},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
}

// Reason returns the machine-readable reason code for err.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "internal"
}

// HTTPStatus maps err to the HTTP status code used in API responses.
func HTTPStatus(err error) int {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.status
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
