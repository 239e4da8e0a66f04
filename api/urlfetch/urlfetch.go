package urlfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/wire"
)

// Fetch performs a request through the URL fetch service.
func Fetch(ctx context.Context, req wire.FetchRequest) (wire.FetchResponse, error) {
	resp, err := apiproxy.MakeSyncCall(ctx, wire.URLFetchService, wire.MethodFetch, req.Encode())
	if err != nil {
		return wire.FetchResponse{}, err
	}
	return wire.DecodeFetchResponse(resp)
}

// Get fetches a URL with the GET method.
func Get(ctx context.Context, url string) (wire.FetchResponse, error) {
	return Fetch(ctx, wire.FetchRequest{Method: wire.HTTPGet, URL: url, FollowRedirects: true})
}

// Transport is an http.RoundTripper that sends requests through the URL fetch service, so that
// an ordinary *http.Client can be used by application code.
type Transport struct {
	// Context is used for calls whose request carries no context of its own.
	Context context.Context
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	method, ok := wire.ParseHTTPMethod(r.Method)
	if !ok {
		return nil, fmt.Errorf("unsupported method %q", r.Method)
	}
	req := wire.FetchRequest{Method: method, URL: r.URL.String()}
	for name, values := range r.Header {
		for _, v := range values {
			req.Headers = append(req.Headers, wire.Header{Name: name, Value: v})
		}
	}
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Payload = body
	}
	ctx := r.Context()
	if ctx == context.Background() && t.Context != nil {
		ctx = t.Context
	}
	resp, err := Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	header := make(http.Header)
	for _, h := range resp.Headers {
		header.Add(h.Name, h.Value)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Content)),
		ContentLength: int64(len(resp.Content)),
		Request:       r,
	}, nil
}
