package apiproxy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolvesOnce(t *testing.T) {
	f, resolve := NewFuture()
	select {
	case <-f.Done():
		t.Fatal("future should not be resolved yet")
	default:
	}

	resolve(Result{Payload: []byte("first")})
	resolve(Result{Payload: []byte("second")})

	assert.Equal(t, "first", string(f.Wait().Payload))
}

func TestFutureGetWrapsFailure(t *testing.T) {
	cause := errors.New("backend exploded")
	_, err := Failed(cause).Get()

	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Same(t, cause, ee.Cause)
	assert.Same(t, cause, Cause(err))
	assert.True(t, errors.Is(err, cause))
}

func TestCauseStripsNestedWrappers(t *testing.T) {
	cause := &ApplicationError{Service: "s", Method: "m", Code: CodeBadRequest}
	err := &ExecutionError{Cause: &ExecutionError{Cause: cause}}
	assert.Same(t, cause, Cause(err))
	assert.Nil(t, Cause(nil))
}

func TestGoRecoversPanic(t *testing.T) {
	f := Go(func() ([]byte, error) { panic("boom") })
	select {
	case <-f.Done():
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for future")
	}
	assert.Error(t, f.Wait().Err)
}

func TestLogLevelNames(t *testing.T) {
	for l := LogLevelDebug; l <= LogLevelFatal; l++ {
		assert.Equal(t, l, ParseLogLevel(l.String()))
	}
	assert.Equal(t, LogLevelInfo, ParseLogLevel("bogus"))
}
