package apiproxy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when the Store is used out of order, such as a second Install
	// without an intervening Restore.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoDelegate is returned when a call is made while no delegate is installed.
	ErrNoDelegate = errors.New("no delegate is installed")
)

// Application error codes shared by the local backends and the remote transport.
const (
	CodeOK            = 0
	CodeBadRequest    = 1
	CodeNotFound      = 2
	CodeInternalError = 3
	CodeDeadline      = 4
)

// ApplicationError is a failure reported by a backend service itself, as opposed to a failure of
// the transport.
type ApplicationError struct {
	Service string
	Method  string
	Code    int
	Detail  string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s.%s failed with code %d: %s", e.Service, e.Method, e.Code, e.Detail)
}

// NewApplicationError is a shortcut for creating an ApplicationError with a formatted detail.
func NewApplicationError(service, method string, code int, format string, args ...interface{}) *ApplicationError {
	return &ApplicationError{Service: service, Method: method, Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CallNotFoundError means no backend implements the requested service or method.
type CallNotFoundError struct {
	Service string
	Method  string
}

func (e *CallNotFoundError) Error() string {
	return fmt.Sprintf("the API call %s.%s() was not found", e.Service, e.Method)
}

// ExecutionError wraps a failure that was delivered through a Future. Use Cause to get the
// underlying failure.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	return "asynchronous call failed: " + e.Cause.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Cause strips any ExecutionError wrappers and returns the failure that the backend produced.
func Cause(err error) error {
	var ee *ExecutionError
	for errors.As(err, &ee) {
		err = ee.Cause
	}
	return err
}
