package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/backendtester/harness/provision"
)

const (
	envPrefix   = "HARNESS"
	defaultPort = 8111
)

const (
	flagLibDir       = "lib-dir"
	flagStorageDir   = "storage-dir"
	flagServices     = "services"
	flagHost         = "host"
	flagPort         = "port"
	flagURL          = "url"
	flagProbeTimeout = "timeout"
	flagDebug        = "debug"
)

type commandParams struct {
	libDir       string
	storageDir   string
	services     []string
	host         string
	port         int
	url          string
	probeTimeout time.Duration
	debug        bool
}

// newViper returns a viper instance bound to flags, with HARNESS_* environment variables as
// the fallback for flags that were not given.
func newViper(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)
	return v
}

func (c *commandParams) read(v *viper.Viper) error {
	c.libDir = v.GetString(flagLibDir)
	c.storageDir = v.GetString(flagStorageDir)
	c.services = v.GetStringSlice(flagServices)
	c.host = v.GetString(flagHost)
	c.port = v.GetInt(flagPort)
	c.url = v.GetString(flagURL)
	c.probeTimeout = v.GetDuration(flagProbeTimeout)
	c.debug = v.GetBool(flagDebug)
	if c.port < 0 || c.port > 65535 {
		return fmt.Errorf("--%s must be between 0 and 65535", flagPort)
	}
	return nil
}

func (c commandParams) loggers() ldlog.Loggers {
	loggers := ldlog.NewDefaultLoggers()
	if c.debug {
		loggers.SetMinLevel(ldlog.Debug)
	}
	return loggers
}

func (c commandParams) provisionConfig() provision.Config {
	return provision.Config{
		LibDir:     c.libDir,
		StorageDir: c.storageDir,
		Services:   c.services,
		Loggers:    c.loggers(),
	}
}
