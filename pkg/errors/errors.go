// Package errors defines custom error types and error handling utilities for the User Key Store service.
// This package provides structured error types that map to HTTP status codes without exposing key material.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/keystore/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// KeyStoreError represents a structured error with additional metadata
type KeyStoreError interface {
	error

	// Code returns the machine readable error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) KeyStoreError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) KeyStoreError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) KeyStoreError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) KeyStoreError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} { return e.metadata }

// Is matches any KeyStoreError carrying the same code, so callers can use
// errors.Is(err, errors.ErrForbidden("")) style checks.
func (e *baseError) Is(target error) bool {
	var other KeyStoreError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code() == e.code
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new KeyStoreError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) KeyStoreError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrUnauthenticated is returned when no caller identity is present
func ErrUnauthenticated(message string) KeyStoreError {
	return NewError(
		constants.ErrCodeUnauthenticated,
		http.StatusUnauthorized,
		"Authentication is required to access this resource.",
		message,
	)
}

// ErrForbidden is returned when the caller is not the key owner
func ErrForbidden(message string) KeyStoreError {
	return NewError(
		constants.ErrCodeForbidden,
		http.StatusForbidden,
		"The authenticated user is not permitted to access this resource.",
		message,
	)
}

// ErrGeneration is returned when a keypair could not be produced
func ErrGeneration(message string) KeyStoreError {
	return NewError(
		constants.ErrCodeGenerationFailed,
		http.StatusInternalServerError,
		"The key pair could not be generated.",
		message,
	)
}

// ErrStorage is returned when the key store could not be read or written
func ErrStorage(message string) KeyStoreError {
	return NewError(
		constants.ErrCodeStorageFailed,
		http.StatusInternalServerError,
		"The key store is unavailable.",
		message,
	)
}

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) KeyStoreError {
	return NewError(
		constants.ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or includes an invalid parameter value.",
		message,
	)
}

// ErrNotFound creates a not_found error
func ErrNotFound(message string) KeyStoreError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource does not exist.",
		message,
	)
}

// ErrInternal creates an internal_error error
func ErrInternal(message string) KeyStoreError {
	return NewError(
		constants.ErrCodeInternal,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition.",
		message,
	)
}

// ================================================================================
// Domain-Specific Error Constructors
// ================================================================================

// ErrOwnerMismatch builds the forbidden error for a requester reaching for someone else's key
func ErrOwnerMismatch(requesterID, ownerID string) KeyStoreError {
	return ErrForbidden(fmt.Sprintf("user %q may not access the key of %q", requesterID, ownerID)).
		WithMetadata("requester_id", requesterID).
		WithMetadata("owner_id", ownerID)
}

// ErrStorageBackend wraps a backend failure with the operation that failed
func ErrStorageBackend(backend, op string, cause error) KeyStoreError {
	return ErrStorage(fmt.Sprintf("%s %s failed", backend, op)).
		WithCause(cause).
		WithMetadata("backend", backend).
		WithMetadata("operation", op)
}

// ErrUnknownOrganization is returned for routes outside the served organization
func ErrUnknownOrganization(org string) KeyStoreError {
	return ErrNotFound(fmt.Sprintf("organization %q not found", org)).
		WithMetadata("organization", org)
}

// ================================================================================
// Error Inspection
// ================================================================================

// AsKeyStoreError extracts a KeyStoreError from an error chain
func AsKeyStoreError(err error) (KeyStoreError, bool) {
	var kse KeyStoreError
	if stderrors.As(err, &kse) {
		return kse, true
	}
	return nil, false
}

func hasCode(err error, code constants.ErrorCode) bool {
	kse, ok := AsKeyStoreError(err)
	return ok && kse.Code() == code
}

// IsUnauthenticated reports whether err is an unauthenticated error
func IsUnauthenticated(err error) bool { return hasCode(err, constants.ErrCodeUnauthenticated) }

// IsForbidden reports whether err is a forbidden error
func IsForbidden(err error) bool { return hasCode(err, constants.ErrCodeForbidden) }

// IsGenerationError reports whether err is a key generation error
func IsGenerationError(err error) bool { return hasCode(err, constants.ErrCodeGenerationFailed) }

// IsStorageError reports whether err is a storage error
func IsStorageError(err error) bool { return hasCode(err, constants.ErrCodeStorageFailed) }

// IsNotFound reports whether err is a not_found error
func IsNotFound(err error) bool { return hasCode(err, constants.ErrCodeNotFound) }

// GetHTTPStatus returns the HTTP status for err, 500 for unstructured errors
func GetHTTPStatus(err error) int {
	if kse, ok := AsKeyStoreError(err); ok {
		return kse.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// ================================================================================
// Error Response
// ================================================================================

// ErrorResponse is the JSON body returned for failed requests
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ToErrorResponse renders err for clients. Causes and metadata are never
// included so backend details stay in the logs.
func ToErrorResponse(err error) ErrorResponse {
	kse, ok := AsKeyStoreError(err)
	if !ok {
		return ErrorResponse{
			Error:            string(constants.ErrCodeInternal),
			ErrorDescription: "The server encountered an unexpected condition.",
		}
	}
	return ErrorResponse{
		Error:            string(kse.Code()),
		ErrorDescription: kse.Description(),
	}
}

//Personal.AI order the ending
