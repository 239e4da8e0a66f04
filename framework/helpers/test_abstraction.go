package helpers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// TestContext is a minimal interface for types like *testing.T representing a test that can
// fail. Functions can use this to avoid a specific dependency on the testing package.
type TestContext interface {
	Errorf(msgFormat string, msgArgs ...interface{})
	FailNow()
	Helper()
}

// TestRecorder is a TestContext that only records failures, for testing the helpers themselves.
// If PanicOnTerminate is set, FailNow panics with the recorder as the value so that a caller
// can use assert.PanicsWithValue.
type TestRecorder struct {
	Errors           []string
	Terminated       bool
	PanicOnTerminate bool
	lock             sync.Mutex
}

func (r *TestRecorder) Errorf(msgFormat string, msgArgs ...interface{}) {
	r.lock.Lock()
	r.Errors = append(r.Errors, fmt.Sprintf(msgFormat, msgArgs...))
	r.lock.Unlock()
}

func (r *TestRecorder) FailNow() {
	r.lock.Lock()
	r.Terminated = true
	r.lock.Unlock()
	if r.PanicOnTerminate {
		panic(r)
	}
}

func (r *TestRecorder) Helper() {}

// Err returns all recorded failures joined into one error, or nil if there were none.
func (r *TestRecorder) Err() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.Errors) == 0 {
		return nil
	}
	return errors.New(strings.Join(r.Errors, ", "))
}
