package apiproxy

import (
	"fmt"
	"sync"
)

// Result is the outcome of one call: a payload on success, or the failure the backend produced.
type Result struct {
	Payload []byte
	Err     error
}

// Future is a handle to the outcome of an asynchronous call. It resolves exactly once.
type Future struct {
	done     chan struct{}
	result   Result
	resolver sync.Once
}

// NewFuture returns an unresolved Future and the function that resolves it. Only the first call
// to the resolve function has any effect.
func NewFuture() (*Future, func(Result)) {
	f := &Future{done: make(chan struct{})}
	return f, f.resolve
}

// Go runs fn on a new goroutine and returns a Future for its outcome. A panic in fn resolves the
// Future with an error instead of crashing the process.
func Go(fn func() ([]byte, error)) *Future {
	f, resolve := NewFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resolve(Result{Err: fmt.Errorf("unexpected panic in asynchronous call: %v", r)})
			}
		}()
		payload, err := fn()
		resolve(Result{Payload: payload, Err: err})
	}()
	return f
}

// Resolved returns a Future that has already succeeded with the given payload.
func Resolved(payload []byte) *Future {
	f, resolve := NewFuture()
	resolve(Result{Payload: payload})
	return f
}

// Failed returns a Future that has already failed with the given error.
func Failed(err error) *Future {
	f, resolve := NewFuture()
	resolve(Result{Err: err})
	return f
}

func (f *Future) resolve(r Result) {
	f.resolver.Do(func() {
		f.result = r
		close(f.done)
	})
}

// Done returns a channel that is closed once the Future has resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the Future resolves and returns its Result. There is no timeout; any deadline
// has to come from the transport that produces the outcome.
func (f *Future) Wait() Result {
	<-f.done
	return f.result
}

// Get blocks like Wait, and reports a failure wrapped in an ExecutionError.
func (f *Future) Get() ([]byte, error) {
	r := f.Wait()
	if r.Err != nil {
		return nil, &ExecutionError{Cause: r.Err}
	}
	return r.Payload, nil
}
