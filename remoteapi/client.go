package remoteapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
)

// Client is an apiproxy.Delegate that sends calls to a Server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	loggers    ldlog.Loggers
}

// ClientOption configures a Client.
type ClientOption helpers.ConfigOption[Client]

// ClientHTTPClient sets the HTTP client used for requests.
func ClientHTTPClient(c *http.Client) ClientOption {
	return helpers.OptionFunc[Client](func(client *Client) error {
		client.httpClient = c
		return nil
	})
}

// ClientLoggers sets the loggers of the client.
func ClientLoggers(loggers ldlog.Loggers) ClientOption {
	return helpers.OptionFunc[Client](func(client *Client) error {
		client.loggers = loggers
		return nil
	})
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		loggers:    ldlog.NewDisabledLoggers(),
	}
	_ = helpers.ApplyOptions(c, options...)
	return c
}

// BaseURL returns the address of the server.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) MakeSyncCall(
	ctx context.Context,
	env apiproxy.Environment,
	service, method string,
	request []byte,
) ([]byte, error) {
	return c.call(ctx, env, service, method, request, 0)
}

func (c *Client) MakeAsyncCall(
	ctx context.Context,
	env apiproxy.Environment,
	service, method string,
	request []byte,
	config apiproxy.APIConfig,
) *apiproxy.Future {
	return apiproxy.Go(func() ([]byte, error) {
		return c.call(ctx, env, service, method, request, config.Deadline)
	})
}

func (c *Client) call(
	ctx context.Context,
	env apiproxy.Environment,
	service, method string,
	request []byte,
	deadline time.Duration,
) ([]byte, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+callPath(service, method), bytes.NewReader(request))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(environmentHeader, encodeEnvironment(env))
	if deadline > 0 {
		req.Header.Set(deadlineHeader, deadlineValue(deadline))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if deadline > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apiproxy.NewApplicationError(service, method, apiproxy.CodeDeadline,
				"deadline of %s exceeded", deadline)
		}
		return nil, fmt.Errorf("could not reach backend at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	envelope, err := parseErrorEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("backend returned status %d for %s", resp.StatusCode, apiproxy.CallKey(service, method))
	}
	return nil, envelope.toError()
}

// Log sends a log record to the server. Failures are logged locally and otherwise ignored.
func (c *Client) Log(ctx context.Context, env apiproxy.Environment, record apiproxy.LogRecord) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+logPath, bytes.NewReader(encodeLogRecord(env, record)))
	if err != nil {
		c.loggers.Warnf("Could not send log record: %s", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(environmentHeader, encodeEnvironment(env))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.loggers.Warnf("Could not send log record: %s", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.loggers.Warnf("Backend rejected log record with status %d", resp.StatusCode)
	}
}

// Ping checks once whether a server answers at baseURL.
func Ping(ctx context.Context, httpClient *http.Client, baseURL string) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, "HEAD", strings.TrimSuffix(baseURL, "/")+"/", nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend at %s answered with status %d", baseURL, resp.StatusCode)
	}
	return nil
}
