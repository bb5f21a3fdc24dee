package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that carries its HTTP status and renders as an API error item.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Status  int            `json:"-"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value any) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]any)
	}
	e.Params[key] = value
	return e
}

// WithError attaches the cause. It is never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusConflict:            "ERR_CONFLICT",
	http.StatusInternalServerError: "ERR_INTERNAL",
	http.StatusBadGateway:          "ERR_UPSTREAM",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
}

// NewAppError builds an AppError for status using the code registered for it.
func NewAppError(status int, message string) *AppError {
	code, ok := statusCodes[status]
	if !ok {
		code = "ERR_" + fmt.Sprint(status)
	}
	return &AppError{Code: code, Message: message, Status: status}
}

func NotFoundError(message string) *AppError {
	return NewAppError(http.StatusNotFound, message)
}

func BadRequestError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message)
}

// ErrorRule maps errors matching Target (errors.Is) to an HTTP status.
type ErrorRule struct {
	Target  error
	Status  int
	Message string
}

// MapError converts err into an AppError. An AppError in the chain is returned
// as is; otherwise the first matching rule wins and anything else is a 500.
// The original error is always kept as the cause.
func MapError(err error, rules ...ErrorRule) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range rules {
		if errors.Is(err, r.Target) {
			msg := r.Message
			if msg == "" {
				msg = http.StatusText(r.Status)
			}
			return NewAppError(r.Status, msg).WithError(err)
		}
	}
	return NewAppError(http.StatusInternalServerError, "Something went wrong").WithError(err)
}
