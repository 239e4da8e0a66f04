package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/remoteapi"
)

var errNoImplementation = errors.New("no local implementation is registered for this service")

// Mode says where a Backend's calls go.
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// Backend is the outcome of provisioning.
type Backend struct {
	Mode Mode

	// Delegate carries out calls; it is either Proxy or Remote.
	Delegate apiproxy.Delegate

	// Proxy is set in ModeLocal.
	Proxy *localapi.Proxy

	// Remote is set in ModeRemote.
	Remote *remoteapi.Client
}

// Close releases the local services, if any.
func (b *Backend) Close() error {
	if b.Proxy != nil {
		return b.Proxy.Close()
	}
	return nil
}

// Provisioner builds a Backend at most once.
type Provisioner struct {
	config        Config
	backend       *Backend
	err           error
	done          bool
	constructions int
	lock          sync.Mutex
}

// NewProvisioner creates a Provisioner. Nothing is checked or built until Ensure is called.
func NewProvisioner(config Config) *Provisioner {
	return &Provisioner{config: config.withDefaults()}
}

// Ensure returns the Backend, provisioning it on the first call. Callers that arrive while the
// first call is still working wait for it and get the same result. A failure is permanent.
func (p *Provisioner) Ensure(ctx context.Context) (*Backend, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.done {
		p.constructions++
		p.backend, p.err = p.provision(ctx)
		p.done = true
	}
	return p.backend, p.err
}

// Constructions returns how many times provisioning work has run: 0 before the first Ensure and
// 1 afterward.
func (p *Provisioner) Constructions() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.constructions
}

// Config returns the configuration with defaults filled in.
func (p *Provisioner) Config() Config {
	return p.config
}

func (p *Provisioner) provision(ctx context.Context) (*Backend, error) {
	config := p.config
	loggers := config.Loggers

	if config.RemoteURL != "" {
		err := config.Probe.Reachable(ctx, config.RemoteURL, config.ProbeTimeout)
		if err == nil {
			loggers.Infof("Using the backend at %s", config.RemoteURL)
			client := remoteapi.NewClient(config.RemoteURL, remoteapi.ClientLoggers(loggers))
			return &Backend{Mode: ModeRemote, Delegate: client, Remote: client}, nil
		}
		loggers.Infof("The backend at %s is not reachable (%s); starting local services", config.RemoteURL, err)
	}

	registry, err := localapi.NewRegistry(config.Factories...)
	if err != nil {
		return nil, err
	}
	manifests := make([]localapi.Manifest, 0, len(config.Services))
	var seen []string
	for _, service := range config.Services {
		if helpers.SliceContains(service, seen) {
			continue
		}
		seen = append(seen, service)
		m, err := p.locate(registry, service)
		if err != nil {
			loggers.Errorf("Unable to provision local services: %s", err)
			return nil, err
		}
		manifests = append(manifests, m)
	}

	proxy, err := localapi.NewProxy(config.StorageDir, registry, manifests, localapi.WithLoggers(loggers))
	if err != nil {
		return nil, fmt.Errorf("unable to start local services: %w", err)
	}
	loggers.Infof("Local services started with data in %s", config.StorageDir)
	return &Backend{Mode: ModeLocal, Delegate: proxy, Proxy: proxy}, nil
}

func (p *Provisioner) locate(registry *localapi.Registry, service string) (localapi.Manifest, error) {
	dir, _ := filepath.Abs(p.config.implDir())
	artifact := filepath.Base(localapi.ManifestPath(p.config.LibDir, service))
	if _, ok := registry.Lookup(service); !ok {
		return localapi.Manifest{}, &ConfigError{Artifact: artifact, Dir: dir, Err: errNoImplementation}
	}
	m, err := localapi.LoadManifest(p.config.LibDir, service)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return localapi.Manifest{}, &ConfigError{Artifact: artifact, Dir: dir}
	case err != nil:
		return localapi.Manifest{}, &ConfigError{Artifact: artifact, Dir: dir, Err: err}
	}
	return m, nil
}

var (
	shared     *Provisioner //nolint:gochecknoglobals
	sharedLock sync.Mutex   //nolint:gochecknoglobals
)

// Ensure provisions the process-wide backend. The first call's config creates the shared
// Provisioner; configs passed to later calls are ignored.
func Ensure(ctx context.Context, config Config) (*Backend, error) {
	sharedLock.Lock()
	if shared == nil {
		shared = NewProvisioner(config)
	}
	p := shared
	sharedLock.Unlock()
	return p.Ensure(ctx)
}

// Shared returns the process-wide Provisioner, or nil if Ensure has not been called yet.
func Shared() *Provisioner {
	sharedLock.Lock()
	defer sharedLock.Unlock()
	return shared
}
