package localapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"golang.org/x/exp/maps"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
)

// Handler implements one method of a service.
type Handler func(ctx context.Context, env apiproxy.Environment, request []byte) ([]byte, error)

// Service is an in-process implementation of one backend service.
type Service interface {
	// Name returns the backend service name, such as "datastore_v3".
	Name() string
	// Call runs one method. Unknown methods fail with *apiproxy.CallNotFoundError.
	Call(ctx context.Context, env apiproxy.Environment, method string, request []byte) ([]byte, error)
	// Close releases whatever the service holds, such as database connections.
	Close() error
}

// Factory builds a Service from its manifest.
type Factory interface {
	ServiceName() string
	New(manifest Manifest, storageDir string, loggers ldlog.Loggers) (Service, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc struct {
	Name  string
	Build func(manifest Manifest, storageDir string, loggers ldlog.Loggers) (Service, error)
}

func (f FactoryFunc) ServiceName() string { return f.Name }

func (f FactoryFunc) New(manifest Manifest, storageDir string, loggers ldlog.Loggers) (Service, error) {
	return f.Build(manifest, storageDir, loggers)
}

// MethodTable is a Service building block that maps method names to handlers.
type MethodTable struct {
	service  string
	handlers map[string]Handler
	loggers  ldlog.Loggers
	lock     sync.RWMutex
}

// NewMethodTable creates an empty table for the named service.
func NewMethodTable(service string, loggers ldlog.Loggers) *MethodTable {
	return &MethodTable{service: service, handlers: make(map[string]Handler), loggers: loggers}
}

// Add registers a handler. Adding the same method twice replaces the first handler.
func (t *MethodTable) Add(method string, h Handler) {
	t.lock.Lock()
	t.handlers[method] = h
	t.lock.Unlock()
}

func (t *MethodTable) Name() string {
	return t.service
}

func (t *MethodTable) Call(ctx context.Context, env apiproxy.Environment, method string, request []byte) ([]byte, error) {
	t.lock.RLock()
	h, ok := t.handlers[method]
	t.lock.RUnlock()
	if !ok {
		return nil, &apiproxy.CallNotFoundError{Service: t.service, Method: method}
	}
	t.loggers.Debugf("[%s] %s (%d bytes)", t.service, method, len(request))
	resp, err := h(ctx, env, request)
	if err != nil {
		t.loggers.Debugf("[%s] %s failed: %s", t.service, method, err)
	}
	return resp, err
}

// Methods returns the registered method names in sorted order.
func (t *MethodTable) Methods() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return helpers.Sorted(maps.Keys(t.handlers))
}

// BadRequest returns the error a service reports for a request it cannot decode or accept.
func BadRequest(service, method string, err error) error {
	return apiproxy.NewApplicationError(service, method, apiproxy.CodeBadRequest, "%s", err)
}

// Internal returns the error a service reports when its own storage fails.
func Internal(service, method string, err error) error {
	return apiproxy.NewApplicationError(service, method, apiproxy.CodeInternalError, "%s", err)
}

func describeFactory(f Factory) string {
	return fmt.Sprintf("factory for %q", f.ServiceName())
}
