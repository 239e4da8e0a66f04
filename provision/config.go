package provision

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/localapi/localdatastore"
	"github.com/backendtester/harness/localapi/localmail"
	"github.com/backendtester/harness/localapi/localtaskqueue"
	"github.com/backendtester/harness/localapi/localurlfetch"
	"github.com/backendtester/harness/wire"
)

const (
	// DefaultLibDir is where manifests are looked for when Config.LibDir is empty.
	DefaultLibDir = "lib"

	// DefaultStorageDir is where local services keep their data when Config.StorageDir is empty.
	DefaultStorageDir = "build/test-data"

	// DefaultProbeTimeout bounds the reachability check of a remote backend.
	DefaultProbeTimeout = 2 * time.Second
)

// Config describes where the backend comes from.
type Config struct {
	// LibDir holds the impl directory with one manifest per service.
	LibDir string

	// StorageDir is passed to every local service for its data files.
	StorageDir string

	// Services lists the services that must be available. Empty means DefaultServices(). A
	// service listed twice is started once.
	Services []string

	// RemoteURL, if set, is the base URL of a running backend (see package remoteapi). When it
	// answers, no local services are built.
	RemoteURL string

	ProbeTimeout time.Duration

	// Factories are the local implementations to choose from. Empty means DefaultFactories().
	Factories []localapi.Factory

	// Probe checks RemoteURL. Nil means an HTTP probe with retries.
	Probe Probe

	// Loggers receives provisioning messages and is handed on to the local services. The zero
	// value logs at Info level and above, as ldlog does by default.
	Loggers ldlog.Loggers
}

// ConfigError means the local backend could not be provisioned because the installation is
// incomplete: a manifest is missing, or nothing implements a required service.
type ConfigError struct {
	Artifact string
	Dir      string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("the artifact (%s) could not be used from the directory (%s): %s", e.Artifact, e.Dir, e.Err)
	}
	return fmt.Sprintf("the artifact (%s) is not found in the directory (%s)", e.Artifact, e.Dir)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DefaultServices returns the names of all services the harness knows about.
func DefaultServices() []string {
	return []string{wire.DatastoreService, wire.MailService, wire.TaskQueueService, wire.URLFetchService}
}

// DefaultFactories returns the built-in local implementation of every default service.
func DefaultFactories() []localapi.Factory {
	return []localapi.Factory{
		localdatastore.NewFactory(),
		localmail.NewFactory(),
		localtaskqueue.NewFactory(),
		localurlfetch.NewFactory(),
	}
}

func (c Config) withDefaults() Config {
	ret := c
	if ret.LibDir == "" {
		ret.LibDir = DefaultLibDir
	}
	if ret.StorageDir == "" {
		ret.StorageDir = DefaultStorageDir
	}
	if len(ret.Services) == 0 {
		ret.Services = DefaultServices()
	}
	if ret.ProbeTimeout <= 0 {
		ret.ProbeTimeout = DefaultProbeTimeout
	}
	if len(ret.Factories) == 0 {
		ret.Factories = DefaultFactories()
	}
	if ret.Probe == nil {
		ret.Probe = HTTPProbe{}
	}
	return ret
}

func (c Config) implDir() string {
	return filepath.Join(c.LibDir, localapi.ImplDir)
}
