package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a ctxbridge error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR" // 400
	ErrNotFound   ErrorCode = "NOT_FOUND"        // 404
	ErrConflict   ErrorCode = "CONFLICT"         // 409
	ErrCapture    ErrorCode = "CAPTURE_ERROR"    // 422
	ErrInternal   ErrorCode = "INTERNAL"         // 500
	ErrSynthesis  ErrorCode = "SYNTHESIS_ERROR"  // 502
	ErrStorage    ErrorCode = "STORAGE_ERROR"    // 503
)

// BridgeError represents a structured error with code, status, and details.
type BridgeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any. Not exposed to MCP/web clients.
	Err error
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// NewValidation creates a 400 error for input rejected locally.
// Validation failures never reach the store or the text-generation collaborator.
func NewValidation(msg string) *BridgeError {
	return &BridgeError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a clip (or template) that does not exist.
func NewNotFound(identifier string) *BridgeError {
	return &BridgeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error, used when a compare-and-set loses the race
// too many times or an id is already taken.
func NewConflict(msg string) *BridgeError {
	return &BridgeError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewCapture creates a 422 error for a capture that produced no content.
func NewCapture(msg string) *BridgeError {
	return &BridgeError{
		Code:    ErrCapture,
		Status:  422,
		Message: msg,
	}
}

// NewSynthesis creates a 502 error carrying the upstream failure message.
func NewSynthesis(cause error) *BridgeError {
	msg := "synthesis failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &BridgeError{
		Code:    ErrSynthesis,
		Status:  502,
		Message: msg,
		Err:     cause,
	}
}

// NewStorage creates a 503 error for a persistence read/write failure.
func NewStorage(op string, cause error) *BridgeError {
	msg := op + " failed"
	if cause != nil {
		msg = fmt.Sprintf("%s failed: %v", op, cause)
	}
	return &BridgeError{
		Code:    ErrStorage,
		Status:  503,
		Message: msg,
		Details: map[string]any{"op": op},
		Err:     cause,
	}
}

// NewClipTooLarge creates a 400 error when content exceeds the configured size.
func NewClipTooLarge(max, actual int) *BridgeError {
	return &BridgeError{
		Code:    ErrValidation,
		Status:  400,
		Message: fmt.Sprintf("clip exceeds maximum size: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewCancelled creates a 500 error when an operation is cancelled by its context.
func NewCancelled(op string) *BridgeError {
	return &BridgeError{
		Code:    ErrInternal,
		Status:  500,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *BridgeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BridgeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a BridgeError with the given code.
func Is(err error, code ErrorCode) bool {
	var bErr *BridgeError
	if stderrors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}

// As returns the BridgeError in err's chain, if any.
func As(err error) (*BridgeError, bool) {
	var bErr *BridgeError
	if stderrors.As(err, &bErr) {
		return bErr, true
	}
	return nil, false
}
