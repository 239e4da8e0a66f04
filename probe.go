package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/provision"
)

var errUnreachable = errors.New("backend is not reachable")

func newProbeCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether a backend answers at a URL",
		Args:  cobra.NoArgs,
	}
	flags := cmd.Flags()
	flags.String(flagURL, "", "base URL of the backend")
	flags.Duration(flagProbeTimeout, provision.DefaultProbeTimeout, "how long to keep trying")
	v := newViper(flags)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		var params commandParams
		if err := params.read(v); err != nil {
			return err
		}
		if params.url == "" {
			return fmt.Errorf("--%s is required", flagURL)
		}
		start := time.Now()
		if err := (provision.HTTPProbe{}).Reachable(cmd.Context(), params.url, params.probeTimeout); err != nil {
			helpers.MustFprintln(out, consoleErrorColor.Sprintf("%s did not answer within %s: %s",
				params.url, params.probeTimeout, err))
			return errUnreachable
		}
		helpers.MustFprintln(out, consoleSuccessColor.Sprintf("%s answered after %s",
			params.url, time.Since(start).Round(time.Millisecond)))
		return nil
	}
	return cmd
}
