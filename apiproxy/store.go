package apiproxy

import (
	"context"
	"fmt"
	"sync"
)

// Store holds the environment and delegate that are current for one scope of execution.
//
// Install and Restore bracket a test: Install records the test's environment and delegate, and
// Restore puts back whatever was there before. Nesting is not supported; a second Install without
// a Restore in between fails with ErrInvalidState.
type Store struct {
	env       Environment
	delegate  Delegate
	installed bool
	lock      sync.Mutex
}

var defaultStore = NewStore() //nolint:gochecknoglobals

// NewStore creates an empty Store with no environment and no delegate.
func NewStore() *Store {
	return &Store{}
}

// Default returns the process-wide Store that is used when a context carries no Store of its own.
func Default() *Store {
	return defaultStore
}

type storeContextKey struct{}

// WithStore returns a context whose calls resolve to the given Store instead of the default one.
// This is how independent tests running concurrently keep their environments apart.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, s)
}

// StoreFrom returns the Store attached to the context, or the default Store.
func StoreFrom(ctx context.Context) *Store {
	if ctx != nil {
		if s, ok := ctx.Value(storeContextKey{}).(*Store); ok && s != nil {
			return s
		}
	}
	return defaultStore
}

// CurrentEnvironment returns the environment that is current for this Store.
func (s *Store) CurrentEnvironment() Environment {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.env
}

// CurrentDelegate returns the delegate that is current for this Store, or nil.
func (s *Store) CurrentDelegate() Delegate {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.delegate
}

// Current returns both the environment and the delegate under one lock.
func (s *Store) Current() (Environment, Delegate) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.env, s.delegate
}

// SetDelegate replaces the delegate outside of an Install/Restore pair. It is meant for process
// bootstrap, such as connecting application code to the real backend before any test runs.
func (s *Store) SetDelegate(d Delegate) {
	s.lock.Lock()
	s.delegate = d
	s.lock.Unlock()
}

// SetEnvironment replaces the environment outside of an Install/Restore pair.
func (s *Store) SetEnvironment(env Environment) {
	s.lock.Lock()
	s.env = env
	s.lock.Unlock()
}

// Installed returns true between Install and Restore.
func (s *Store) Installed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.installed
}

// Install makes env and d current. It fails if something is already installed or if d is nil.
func (s *Store) Install(env Environment, d Delegate) error {
	if d == nil {
		return fmt.Errorf("cannot install a nil delegate: %w", ErrInvalidState)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.installed {
		return fmt.Errorf("a delegate is already installed; Restore must be called before Install: %w",
			ErrInvalidState)
	}
	s.env = env
	s.delegate = d
	s.installed = true
	return nil
}

// Restore puts back a previously saved environment and delegate and ends the Install scope.
func (s *Store) Restore(savedEnv Environment, savedDelegate Delegate) {
	s.lock.Lock()
	s.env = savedEnv
	s.delegate = savedDelegate
	s.installed = false
	s.lock.Unlock()
}

// MakeSyncCall calls the current delegate of the Store resolved from ctx.
func MakeSyncCall(ctx context.Context, service, method string, request []byte) ([]byte, error) {
	env, d := StoreFrom(ctx).Current()
	if d == nil {
		return nil, fmt.Errorf("%s: %w", CallKey(service, method), ErrNoDelegate)
	}
	return d.MakeSyncCall(ctx, env, service, method, request)
}

// MakeAsyncCall starts a call on the current delegate of the Store resolved from ctx.
func MakeAsyncCall(ctx context.Context, service, method string, request []byte, config APIConfig) *Future {
	env, d := StoreFrom(ctx).Current()
	if d == nil {
		return Failed(fmt.Errorf("%s: %w", CallKey(service, method), ErrNoDelegate))
	}
	return d.MakeAsyncCall(ctx, env, service, method, request, config)
}

// Log sends a log record to the current delegate, if there is one.
func Log(ctx context.Context, record LogRecord) {
	env, d := StoreFrom(ctx).Current()
	if d != nil {
		d.Log(ctx, env, record)
	}
}
