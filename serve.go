package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/provision"
	"github.com/backendtester/harness/remoteapi"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve local backend services over HTTP",
		Args:  cobra.NoArgs,
	}
	flags := cmd.Flags()
	flags.String(flagLibDir, provision.DefaultLibDir, "directory containing impl/<service>.yaml manifests")
	flags.String(flagStorageDir, provision.DefaultStorageDir, "directory for the data of local services")
	flags.StringSlice(flagServices, provision.DefaultServices(), "services to start")
	flags.String(flagHost, "localhost", "address to listen on")
	flags.Int(flagPort, defaultPort, "port to listen on (0 picks a free port)")
	flags.Bool(flagDebug, false, "enable debug logging")
	v := newViper(flags)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		var params commandParams
		if err := params.read(v); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, params, out, nil)
	}
	return cmd
}

// serve runs until ctx is done. If ready is not nil, it receives the listening address once the
// server accepts connections.
func serve(ctx context.Context, params commandParams, out io.Writer, ready chan<- string) error {
	loggers := params.loggers()
	backend, err := provision.Ensure(ctx, params.provisionConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			loggers.Warnf("Error while stopping local services: %s", err)
		}
	}()

	var services []string
	if backend.Proxy != nil {
		services = backend.Proxy.Services()
	}
	server := remoteapi.NewServer(backend.Delegate,
		remoteapi.ServerLoggers(loggers),
		remoteapi.ServerStatus(func() map[string]string {
			status := map[string]string{
				"mode":     backend.Mode.String(),
				"services": strings.Join(services, ","),
			}
			if backend.Proxy != nil {
				status["calls"] = strconv.Itoa(backend.Proxy.Counters().Total())
			}
			return status
		}),
	)
	defer server.Close()

	listener, err := net.Listen("tcp", net.JoinHostPort(params.host, strconv.Itoa(params.port)))
	if err != nil {
		return fmt.Errorf("unable to listen: %w", err)
	}
	httpServer := &http.Server{Handler: server, ReadHeaderTimeout: 10 * time.Second}
	served := make(chan error, 1)
	go func() {
		served <- httpServer.Serve(listener)
	}()

	addr := listener.Addr().String()
	helpers.MustFprintln(out, consoleSuccessColor.Sprintf("Serving %s at http://%s", strings.Join(services, ", "), addr))
	helpers.MustFprintln(out, consoleInfoColor.Sprintf("Data is kept in %s", params.storageDir))
	if ready != nil {
		ready <- addr
	}

	select {
	case <-ctx.Done():
	case err := <-served:
		return err
	}

	helpers.MustFprintln(out, "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
