package errors

import (
	stderrors "errors"
	"net/http"
)

// As finds the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// BadRequestWithDetails creates a 400 error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// UnauthorizedWithDetails creates a 401 error with details
func UnauthorizedWithDetails(code string, message string, details any) *AppError {
	return NewUnauthorizedError(code, message).WithDetails(details)
}

// NotFoundWithDetails creates a 404 error with details
func NotFoundWithDetails(code string, message string, details any) *AppError {
	return NewNotFoundError(code, message).WithDetails(details)
}

// InternalServerWithDetails creates a 500 error with details
func InternalServerWithDetails(code string, message string, details any) *AppError {
	return NewInternalServerError(code, message).WithDetails(details)
}

// FromError converts any error to an AppError. Errors that are not AppErrors
// become a 500 whose message does not leak the internal error text.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return NewInternalServerError("INTERNAL_ERROR", "An unexpected error occurred").Wrap(err)
}

// GetStatusCode returns the HTTP status for err, 500 when unknown
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the public error code for err
func GetErrorCode(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}
