package localapi

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/backendtester/harness/framework/helpers"
)

// Registry maps service names to the factories that build them.
type Registry struct {
	factories map[string]Factory
	lock      sync.Mutex
}

// NewRegistry creates a registry holding the given factories.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{factories: make(map[string]Factory)}
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a factory. Registering two factories for one service is an error.
func (r *Registry) Register(f Factory) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	name := f.ServiceName()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%s: service %q is already registered", describeFactory(f), name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory for a service.
func (r *Registry) Lookup(service string) (Factory, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	f, ok := r.factories[service]
	return f, ok
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return helpers.Sorted(maps.Keys(r.factories))
}
