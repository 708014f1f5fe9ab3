// Package errors provides structured error types for the photobooth.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the booth and the HTTP API
//   - Machine-readable error codes that map onto HTTP status codes
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes group into four families:
//   - INVALID_*, PAYLOAD_*, NO_PHOTOS: caller input errors (400)
//   - *_NOT_FOUND: missing sessions or renders (404)
//   - BUSY, SESSION_COMPLETE: conflicting state (409)
//   - everything else: server, storage or configuration failures (500)
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidPayload, "Invalid image payload.")
//	if errors.Is(err, errors.ErrCodeInvalidPayload) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStorage, origErr, "write %s", path)
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPayload Code = "INVALID_PAYLOAD"
	ErrCodePayloadSize    Code = "PAYLOAD_SIZE"
	ErrCodeInvalidTimer   Code = "INVALID_TIMER"
	ErrCodeNoPhotos       Code = "NO_PHOTOS"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeSessionNotFound Code = "SESSION_NOT_FOUND"

	// State conflicts
	ErrCodeBusy            Code = "BUSY"
	ErrCodeSessionComplete Code = "SESSION_COMPLETE"

	// Capture and rendering errors
	ErrCodeCameraUnavailable Code = "CAMERA_UNAVAILABLE"
	ErrCodeCaptureFailed     Code = "CAPTURE_FAILED"
	ErrCodeImageLoad         Code = "IMAGE_LOAD"
	ErrCodeUploadFailed      Code = "UPLOAD_FAILED"

	// Internal errors
	ErrCodeStorage  Code = "STORAGE"
	ErrCodeConfig   Code = "CONFIG"
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps an error code to the HTTP status the API answers with.
// Unknown codes map to 500.
func HTTPStatus(code Code) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeInvalidPayload, ErrCodePayloadSize, ErrCodeInvalidTimer:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeSessionNotFound, ErrCodeNoPhotos:
		return http.StatusNotFound
	case ErrCodeBusy, ErrCodeSessionComplete:
		return http.StatusConflict
	case ErrCodeUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the HTTP status for any error.
func StatusOf(err error) int {
	return HTTPStatus(GetCode(err))
}
