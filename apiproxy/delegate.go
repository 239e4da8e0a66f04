package apiproxy

import (
	"context"
	"time"
)

// Delegate is implemented by anything that can carry out backend calls: the in-process local
// backends, the remote backend client, and the test dispatcher that wraps either of them.
type Delegate interface {
	// MakeSyncCall performs a call and blocks until its outcome is available.
	MakeSyncCall(ctx context.Context, env Environment, service, method string, request []byte) ([]byte, error)

	// MakeAsyncCall starts a call and returns a Future that resolves to exactly one outcome.
	MakeAsyncCall(
		ctx context.Context,
		env Environment,
		service, method string,
		request []byte,
		config APIConfig,
	) *Future

	// Log delivers an application log record to the backend.
	Log(ctx context.Context, env Environment, record LogRecord)
}

// APIConfig holds per-call options for asynchronous calls.
type APIConfig struct {
	// Deadline is how long the transport may take before giving up. Zero means the transport's
	// own default; the harness itself never imposes a timeout.
	Deadline time.Duration
}

// Call identifies one outbound call. Service and Method together are the dispatch key.
type Call struct {
	Service string
	Method  string
	Payload []byte
}

// Key returns the dispatch key in "service.Method" form.
func (c Call) Key() string {
	return CallKey(c.Service, c.Method)
}

// CallKey returns the dispatch key for a service and method.
func CallKey(service, method string) string {
	return service + "." + method
}

// LogLevel is the severity of a LogRecord.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLogLevel is the inverse of LogLevel.String. Unrecognized names map to LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	for l := LogLevelDebug; l <= LogLevelFatal; l++ {
		if l.String() == s {
			return l
		}
	}
	return LogLevelInfo
}

// LogRecord is an application log line sent through Delegate.Log.
type LogRecord struct {
	Level   LogLevel
	Time    time.Time
	Message string
}
