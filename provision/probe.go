package provision

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/backendtester/harness/remoteapi"
)

// Probe decides whether a remote backend is usable. It returns nil if the backend answered
// within the timeout.
type Probe interface {
	Reachable(ctx context.Context, baseURL string, timeout time.Duration) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context, baseURL string, timeout time.Duration) error

func (f ProbeFunc) Reachable(ctx context.Context, baseURL string, timeout time.Duration) error {
	return f(ctx, baseURL, timeout)
}

// HTTPProbe pings the backend's status resource, retrying with exponential backoff until the
// timeout elapses.
type HTTPProbe struct {
	HTTPClient *http.Client

	// InitialInterval is the first delay between attempts. Zero means the backoff default.
	InitialInterval time.Duration
}

func (p HTTPProbe) Reachable(ctx context.Context, baseURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	policy := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		policy.InitialInterval = p.InitialInterval
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, remoteapi.Ping(ctx, p.HTTPClient, baseURL)
	}, backoff.WithBackOff(policy), backoff.WithMaxElapsedTime(timeout))
	return err
}
