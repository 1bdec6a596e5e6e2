package http

import (
	"errors"
	"fmt"
)

// The pipeline catches everything at the per-request boundary and maps it
// to a status via these kinds. Client-visible bodies never carry the
// internal message.

// ClientError is a malformed or oversize request. Surfaces as 400.
type ClientError struct {
	Reason string
}

func (e *ClientError) Error() string { return e.Reason }

// NewClientError builds a ClientError with a formatted reason.
func NewClientError(format string, args ...any) *ClientError {
	return &ClientError{Reason: fmt.Sprintf(format, args...)}
}

// ServerError is an internal failure: socket, temp file, unexpected EOF.
// Surfaces as 500 on the request path; aborts start() on the startup path.
type ServerError struct {
	Reason string
	Err    error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ServerError) Unwrap() error { return e.Err }

// NewServerError wraps err with a reason.
func NewServerError(reason string, err error) *ServerError {
	return &ServerError{Reason: reason, Err: err}
}

// ProcessingError is a multipart parse or boundary violation. Surfaces as
// 500 when caught mid-request.
type ProcessingError struct {
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// NewProcessingError builds a ProcessingError with a formatted reason.
func NewProcessingError(format string, args ...any) *ProcessingError {
	return &ProcessingError{Reason: fmt.Sprintf(format, args...)}
}

// StatusFor maps an error to the response status the pipeline sends:
// 400 for client errors, 500 for everything else.
func StatusFor(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return StatusBadRequest
	}
	return StatusInternalServerError
}
