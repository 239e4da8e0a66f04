package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// version is replaced at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals

var (
	consoleErrorColor   = color.New(color.FgRed)   //nolint:gochecknoglobals
	consoleSuccessColor = color.New(color.FgGreen) //nolint:gochecknoglobals
	consoleInfoColor    = color.New(color.Faint)   //nolint:gochecknoglobals
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		_, _ = consoleErrorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "backend-test-harness",
		Short: "Runs local backend services for tests, or checks a running backend",
		Long: fmt.Sprintf(`backend-test-harness serves the local datastore, mail, task queue and URL fetch
services over HTTP so that tests in other processes can use them, and checks whether
such a backend is reachable. Every flag can also be set with an environment variable
named %s_<FLAG>, for instance %s_LIB_DIR.`, envPrefix, envPrefix),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(newServeCommand(out))
	root.AddCommand(newProbeCommand(out))
	return root
}
