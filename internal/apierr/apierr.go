// Package apierr carries the error taxonomy surfaced to API callers.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeAuthenticationFailed   = "AUTHENTICATION_FAILED"
	CodeJobNotFound            = "JOB_NOT_FOUND"
	CodeTaskNotFound           = "TASK_NOT_FOUND"
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnsupportedServiceType = "UNSUPPORTED_SERVICE_TYPE"
	CodeConfiguration          = "CONFIGURATION_ERROR"
	CodePlatform               = "PLATFORM_ERROR"
	CodeNoResults              = "NO_RESULTS"
	CodeInternal               = "INTERNAL_ERROR"
)

// Error is an error with an HTTP status and a machine readable code.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func Wrap(err error, status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeAuthenticationFailed, message)
}

func JobNotFound(id int64) *Error {
	return New(http.StatusNotFound, CodeJobNotFound, fmt.Sprintf("Processing job %d not found", id))
}

func TaskNotFound(id int64) *Error {
	return New(http.StatusNotFound, CodeTaskNotFound, fmt.Sprintf("Upscale task %d not found", id))
}

func Validation(details any) *Error {
	return New(http.StatusUnprocessableEntity, CodeValidation, "Request validation failed").WithDetails(details)
}

func Configuration(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, CodeConfiguration, err.Error())
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Response is the JSON body written for every failed request.
type Response struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ToResponse converts err into a status and body. Errors outside the taxonomy are reported as internal.
func ToResponse(err error, requestID string) (int, Response) {
	if e, ok := As(err); ok {
		return e.Status, Response{
			Status:    "error",
			ErrorCode: e.Code,
			Message:   e.Message,
			Details:   e.Details,
			RequestID: requestID,
		}
	}
	return http.StatusInternalServerError, Response{
		Status:    "error",
		ErrorCode: CodeInternal,
		Message:   "An unexpected error occurred.",
		RequestID: requestID,
	}
}
