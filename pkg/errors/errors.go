package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeAuthorizationExpired = "AUTHORIZATION_EXPIRED"
	CodeSessionExpired       = "SESSION_EXPIRED"
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeNetwork              = "NETWORK_ERROR"
	CodeUnknown              = "UNKNOWN"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeAccountExists        = "ACCOUNT_EXISTS"
	CodeForbidden            = "FORBIDDEN"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeInternal             = "INTERNAL_ERROR"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

// Unauthenticated is returned when an operation needs an identity and none is present.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// AuthorizationExpired marks a remote rejection for a previously valid identity.
// Cache contexts answer it with one refresh-and-retry.
func AuthorizationExpired(message string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthorizationExpired,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func SessionExpired(err error) *AppError {
	return &AppError{
		Code:    CodeSessionExpired,
		Message: "Your session has expired. Please log in again.",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Validation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func Network(message string, err error) *AppError {
	return &AppError{
		Code:    CodeNetwork,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Unknown passes an unclassified remote error message through.
func Unknown(err error) *AppError {
	message := "An unexpected error occurred"
	if err != nil {
		message = err.Error()
	}
	return &AppError{
		Code:    CodeUnknown,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func InvalidCredentials(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidCredentials,
		Message: "Invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func AccountExists(err error) *AppError {
	return &AppError{
		Code:    CodeAccountExists,
		Message: "An account with this email already exists",
		Status:  http.StatusConflict,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the AppError code carried by err, or CodeUnknown.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func TooManyRequests(message string, waitTime interface{}) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: fmt.Sprintf("%s (retry in %v)", message, waitTime),
		Status:  http.StatusTooManyRequests,
		Err:     nil,
	}
}

// MessageOf returns the user-facing message carried by err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
