package localapi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"golang.org/x/exp/maps"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
)

// Proxy is an apiproxy.Delegate that serves calls from in-process services.
type Proxy struct {
	storageDir string
	services   map[string]Service
	counters   *CallCounters
	logSinks   []func(apiproxy.Environment, apiproxy.LogRecord)
	loggers    ldlog.Loggers
	closed     bool
	lock       sync.Mutex
}

// ProxyOption configures a Proxy.
type ProxyOption helpers.ConfigOption[Proxy]

// WithLoggers sets the loggers of the proxy and of the services it builds.
func WithLoggers(loggers ldlog.Loggers) ProxyOption {
	return helpers.OptionFunc[Proxy](func(p *Proxy) error {
		p.loggers = loggers
		return nil
	})
}

// WithLogSink adds a function that receives every log record sent through the proxy.
func WithLogSink(fn func(apiproxy.Environment, apiproxy.LogRecord)) ProxyOption {
	return helpers.OptionFunc[Proxy](func(p *Proxy) error {
		p.logSinks = append(p.logSinks, fn)
		return nil
	})
}

// NewProxy builds one service per manifest, using the registry's factory for that service.
// If any service cannot be built, the ones already built are closed and the error is returned.
func NewProxy(storageDir string, registry *Registry, manifests []Manifest, options ...ProxyOption) (*Proxy, error) {
	p := &Proxy{
		storageDir: storageDir,
		services:   make(map[string]Service),
		counters:   newCallCounters(),
		loggers:    ldlog.NewDisabledLoggers(),
	}
	if err := helpers.ApplyOptions(p, options...); err != nil {
		return nil, err
	}
	for _, m := range manifests {
		f, ok := registry.Lookup(m.Service)
		if !ok {
			_ = p.Close()
			return nil, fmt.Errorf("no local implementation is registered for service %q", m.Service)
		}
		if _, dup := p.services[m.Service]; dup {
			_ = p.Close()
			return nil, fmt.Errorf("service %q was listed twice", m.Service)
		}
		svc, err := f.New(m, storageDir, p.loggers)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("could not start local service %q: %w", m.Service, err)
		}
		p.services[m.Service] = svc
		p.loggers.Infof("Started local service %q", m.Service)
	}
	return p, nil
}

// StorageDir returns the directory the services keep their data in.
func (p *Proxy) StorageDir() string {
	return p.storageDir
}

// Service returns the service with the given name.
func (p *Proxy) Service(name string) (Service, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	s, ok := p.services[name]
	return s, ok
}

// Services returns the names of the running services in sorted order.
func (p *Proxy) Services() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return helpers.Sorted(maps.Keys(p.services))
}

// Counters returns the call counters of the proxy.
func (p *Proxy) Counters() *CallCounters {
	return p.counters
}

func (p *Proxy) MakeSyncCall(
	ctx context.Context,
	env apiproxy.Environment,
	service, method string,
	request []byte,
) ([]byte, error) {
	p.counters.increment(service, method)
	svc, ok := p.Service(service)
	if !ok {
		return nil, &apiproxy.CallNotFoundError{Service: service, Method: method}
	}
	return svc.Call(ctx, env, method, request)
}

func (p *Proxy) MakeAsyncCall(
	ctx context.Context,
	env apiproxy.Environment,
	service, method string,
	request []byte,
	config apiproxy.APIConfig,
) *apiproxy.Future {
	return apiproxy.Go(func() ([]byte, error) {
		callCtx := ctx
		if config.Deadline > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, config.Deadline)
			defer cancel()
		}
		resp, err := p.MakeSyncCall(callCtx, env, service, method, request)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apiproxy.NewApplicationError(service, method, apiproxy.CodeDeadline,
				"deadline of %s exceeded", config.Deadline)
		}
		return resp, err
	})
}

// Log writes the record to the proxy's loggers and passes it to every log sink.
func (p *Proxy) Log(_ context.Context, env apiproxy.Environment, record apiproxy.LogRecord) {
	prefix := "[app]"
	if env.AppID != "" {
		prefix = "[" + env.AppID + "]"
	}
	switch record.Level {
	case apiproxy.LogLevelDebug:
		p.loggers.Debugf("%s %s", prefix, record.Message)
	case apiproxy.LogLevelInfo:
		p.loggers.Infof("%s %s", prefix, record.Message)
	case apiproxy.LogLevelWarn:
		p.loggers.Warnf("%s %s", prefix, record.Message)
	default:
		p.loggers.Errorf("%s %s", prefix, record.Message)
	}
	p.lock.Lock()
	sinks := append([]func(apiproxy.Environment, apiproxy.LogRecord){}, p.logSinks...)
	p.lock.Unlock()
	for _, sink := range sinks {
		sink(env, record)
	}
}

// Close closes every service. It is safe to call more than once.
func (p *Proxy) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	services := maps.Values(p.services)
	p.lock.Unlock()
	var firstErr error
	for _, s := range services {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
