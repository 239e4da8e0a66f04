// Package localurlfetch is the in-process implementation of the URL fetch service. It performs
// real HTTP requests with net/http.
package localurlfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/wire"
)

const (
	defaultTimeout = 5 * time.Second
	// MaxResponseSize is the largest body returned; longer bodies are cut and flagged as truncated.
	MaxResponseSize = 32 << 20
	maxRedirects    = 5
)

// Options is the content of the URL fetch manifest.
type Options struct {
	// Timeout applies to requests that carry no deadline of their own.
	Timeout time.Duration `yaml:"timeout"`
}

// Service is the local URL fetch service.
type Service struct {
	*localapi.MethodTable
	options Options
	client  *http.Client
	loggers ldlog.Loggers
}

// NewFactory returns the factory that builds the service from its manifest.
func NewFactory() localapi.Factory {
	return localapi.FactoryFunc{
		Name: wire.URLFetchService,
		Build: func(m localapi.Manifest, _ string, loggers ldlog.Loggers) (localapi.Service, error) {
			opts := Options{Timeout: defaultTimeout}
			if err := m.Decode(&opts); err != nil {
				return nil, err
			}
			return New(opts, loggers), nil
		},
	}
}

func New(opts Options, loggers ldlog.Loggers) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	s := &Service{
		MethodTable: localapi.NewMethodTable(wire.URLFetchService, loggers),
		options:     opts,
		loggers:     loggers,
		client: &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
	s.Add(wire.MethodFetch, s.fetch)
	return s
}

func (s *Service) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Service) fetch(ctx context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	req, err := wire.DecodeFetchRequest(request)
	if err != nil {
		return nil, localapi.BadRequest(wire.URLFetchService, wire.MethodFetch, err)
	}
	timeout := s.options.Timeout
	if req.Deadline > 0 {
		timeout = req.Deadline
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Payload) > 0 {
		body = bytes.NewReader(req.Payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method.String(), req.URL, body)
	if err != nil {
		return nil, localapi.BadRequest(wire.URLFetchService, wire.MethodFetch, err)
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}

	client := *s.client
	client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if !req.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apiproxy.NewApplicationError(wire.URLFetchService, wire.MethodFetch, apiproxy.CodeDeadline,
				"fetch of %s exceeded its deadline of %s", req.URL, timeout)
		}
		return nil, apiproxy.NewApplicationError(wire.URLFetchService, wire.MethodFetch, apiproxy.CodeInternalError,
			"fetch of %s failed: %s", req.URL, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, localapi.Internal(wire.URLFetchService, wire.MethodFetch, err)
	}
	out := wire.FetchResponse{StatusCode: resp.StatusCode}
	if len(content) > MaxResponseSize {
		content = content[:MaxResponseSize]
		out.ContentWasTruncated = true
	}
	out.Content = content
	for name, values := range resp.Header {
		for _, v := range values {
			out.Headers = append(out.Headers, wire.Header{Name: name, Value: v})
		}
	}
	if final := resp.Request.URL.String(); final != req.URL {
		out.FinalURL = final
	}
	s.loggers.Debugf("Fetched %s %s: %d (%d bytes)", req.Method, req.URL, resp.StatusCode, len(content))
	return out.Encode(), nil
}
