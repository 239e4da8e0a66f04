package tester

import (
	"errors"
	"fmt"
)

// ErrNotSetUp is returned by TearDown and by the helpers that need a running test when SetUp has
// not succeeded.
var ErrNotSetUp = errors.New("the tester is not set up")

// DispatchError means the Dispatcher could not interpret a call it is responsible for, usually
// because a payload did not decode.
type DispatchError struct {
	Service string
	Method  string
	// Step names the function that failed, such as "wire.DecodeTaskAddRequest".
	Step string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s.%s: %s failed: %s", e.Service, e.Method, e.Step, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// TeardownError is the first failure seen while undoing a test's side effects.
type TeardownError struct {
	Step string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown failed during %s: %s", e.Step, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
