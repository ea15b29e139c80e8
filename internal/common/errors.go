package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Capture pipeline errors. None of them is retried automatically; the user
// restarts the affected side.
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrMissingSide       = errors.New("missing document side")
	ErrUploadFailed      = errors.New("upload failed")
	ErrOCRDispatchFailed = errors.New("ocr dispatch failed")
	ErrOCRFailed         = errors.New("ocr job failed")
	ErrOCRTimeout        = errors.New("ocr job timed out")
	ErrDateFormat        = errors.New("unparsable date")
	ErrSaveFailed        = errors.New("save failed")
)

// Error codes carried on AppError.Code.
const (
	CodeConfig            = "CONFIG_ERROR"
	CodeNotAuthenticated  = "NOT_AUTHENTICATED"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeMissingSide       = "MISSING_SIDE"
	CodeUploadFailed      = "UPLOAD_FAILED"
	CodeOCRDispatchFailed = "OCR_DISPATCH_FAILED"
	CodeOCRFailed         = "OCR_FAILED"
	CodeOCRTimeout        = "OCR_TIMEOUT"
	CodeDateFormat        = "DATE_FORMAT"
	CodeSaveFailed        = "SAVE_FAILED"
	CodeValidation        = "VALIDATION_ERROR"
	CodeRemote            = "REMOTE_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewKindError builds an AppError whose cause matches kind under errors.Is
// and, when err is non-nil, err as well.
func NewKindError(code string, kind error, message string, err error) *AppError {
	cause := kind
	if err != nil {
		cause = fmt.Errorf("%w: %w", kind, err)
	}
	return NewAppError(code, message, cause)
}

// DateFormatError reports a date string that is not DD/MM/YYYY.
type DateFormatError struct {
	Field  string
	Input  string
	Reason string
}

func (e *DateFormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid date %q in %s: %s", e.Input, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid date %q: %s", e.Input, e.Reason)
}

func (e *DateFormatError) Unwrap() error { return ErrDateFormat }

// UserMessage renders err as the short text shown to the person at the
// device. Server messages are passed through verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	var dateErr *DateFormatError
	switch {
	case errors.As(err, &dateErr):
		if dateErr.Field != "" {
			return fmt.Sprintf("%s: %q is not a DD/MM/YYYY date", dateErr.Field, dateErr.Input)
		}
		return fmt.Sprintf("%q is not a DD/MM/YYYY date", dateErr.Input)
	case errors.Is(err, ErrNotAuthenticated):
		return "Not signed in. Run 'idscan login' first."
	case errors.Is(err, ErrPermissionDenied):
		return "Camera or photo library access was refused"
	case errors.Is(err, ErrMissingSide):
		return "Both the front and the back of the card are required"
	case errors.Is(err, ErrOCRTimeout):
		return "Text recognition took too long. Please scan again."
	case errors.Is(err, ErrOCRFailed):
		return "Text recognition failed. Please scan again."
	}
	return err.Error()
}
