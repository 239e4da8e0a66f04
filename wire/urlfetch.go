package wire

import (
	"strings"
	"time"
)

// URLFetchService is the name of the URL fetch backend service.
const URLFetchService = "urlfetch"

// MethodFetch is the only URL fetch method.
const MethodFetch = "Fetch"

// HTTPMethod is the request method of a fetch or of a push task.
type HTTPMethod int32

const (
	HTTPGet    HTTPMethod = 1
	HTTPPost   HTTPMethod = 2
	HTTPHead   HTTPMethod = 3
	HTTPPut    HTTPMethod = 4
	HTTPDelete HTTPMethod = 5
	HTTPPatch  HTTPMethod = 6
)

var httpMethodNames = map[HTTPMethod]string{ //nolint:gochecknoglobals
	HTTPGet:    "GET",
	HTTPPost:   "POST",
	HTTPHead:   "HEAD",
	HTTPPut:    "PUT",
	HTTPDelete: "DELETE",
	HTTPPatch:  "PATCH",
}

// String returns the HTTP name of the method. An unset method is treated as GET.
func (m HTTPMethod) String() string {
	if m == 0 {
		return "GET"
	}
	if name, ok := httpMethodNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseHTTPMethod returns the method with the given HTTP name, or false if there is none.
func ParseHTTPMethod(name string) (HTTPMethod, bool) {
	for m, n := range httpMethodNames {
		if strings.EqualFold(n, name) {
			return m, true
		}
	}
	return 0, false
}

// FetchRequest is the request of a URL fetch.
type FetchRequest struct {
	Method          HTTPMethod
	URL             string
	Headers         []Header
	Payload         []byte
	FollowRedirects bool
	// Deadline is zero when the caller did not set one.
	Deadline time.Duration
}

// Header returns the value of the first header with the given name, compared case-insensitively.
func (m FetchRequest) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (m FetchRequest) Encode() []byte {
	var e encoder
	e.uint64(1, uint64(m.Method))
	e.string(2, m.URL)
	encodeHeaders(&e, 3, m.Headers)
	e.bytes(4, m.Payload)
	e.bool(5, m.FollowRedirects)
	e.double(6, m.Deadline.Seconds())
	return e.b
}

func DecodeFetchRequest(data []byte) (FetchRequest, error) {
	var m FetchRequest
	err := eachField("FetchRequest", data, func(f field) (err error) {
		switch f.num {
		case 1:
			var v uint64
			v, err = f.asUint64("method")
			m.Method = HTTPMethod(v)
		case 2:
			m.URL, err = f.asString("url")
		case 3:
			var h Header
			h, err = decodeHeader("FetchRequest", f)
			m.Headers = append(m.Headers, h)
		case 4:
			m.Payload, err = f.asBytes("payload")
		case 5:
			m.FollowRedirects, err = f.asBool("follow_redirects")
		case 6:
			var secs float64
			secs, err = f.asDouble("deadline")
			m.Deadline = time.Duration(secs * float64(time.Second))
		}
		return err
	})
	if err != nil {
		return FetchRequest{}, err
	}
	return m, nil
}

// FetchResponse is the response of a URL fetch.
type FetchResponse struct {
	Content             []byte
	StatusCode          int
	Headers             []Header
	ContentWasTruncated bool
	FinalURL            string
}

func (m FetchResponse) Encode() []byte {
	var e encoder
	e.bytes(1, m.Content)
	e.int64(2, int64(m.StatusCode))
	encodeHeaders(&e, 3, m.Headers)
	e.bool(4, m.ContentWasTruncated)
	e.string(5, m.FinalURL)
	return e.b
}

func DecodeFetchResponse(data []byte) (FetchResponse, error) {
	var m FetchResponse
	err := eachField("FetchResponse", data, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Content, err = f.asBytes("content")
		case 2:
			var v int64
			v, err = f.asInt64("status_code")
			m.StatusCode = int(v)
		case 3:
			var h Header
			h, err = decodeHeader("FetchResponse", f)
			m.Headers = append(m.Headers, h)
		case 4:
			m.ContentWasTruncated, err = f.asBool("content_was_truncated")
		case 5:
			m.FinalURL, err = f.asString("final_url")
		}
		return err
	})
	if err != nil {
		return FetchResponse{}, err
	}
	return m, nil
}

// EncodeFetchResponse builds the encoded response of a fetch that returned the given content and
// status code, without headers.
func EncodeFetchResponse(content []byte, statusCode int) []byte {
	return FetchResponse{Content: content, StatusCode: statusCode}.Encode()
}
