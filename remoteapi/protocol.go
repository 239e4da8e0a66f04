package remoteapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/backendtester/harness/apiproxy"
)

const (
	callsPathPrefix = "/calls/"
	logPath         = "/log"
	logsPath        = "/logs"

	environmentHeader = "X-Harness-Environment"
	deadlineHeader    = "X-Harness-Deadline-Ms"

	logsChannel  = "logs"
	logEventName = "log"

	errorKindApplication = "application"
	errorKindNotFound    = "not_found"
	errorKindInternal    = "internal"
)

func callPath(service, method string) string {
	return callsPathPrefix + service + "/" + method
}

func encodeEnvironment(env apiproxy.Environment) string {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Maybe("appId", env.AppID != "").String(env.AppID)
	obj.Maybe("versionId", env.VersionID != "").String(env.VersionID)
	obj.Maybe("requestId", env.RequestID != "").String(env.RequestID)
	obj.Maybe("email", env.Email != "").String(env.Email)
	obj.Maybe("authDomain", env.AuthDomain != "").String(env.AuthDomain)
	obj.Maybe("admin", env.Admin).Bool(true)
	obj.Maybe("loggedIn", env.LoggedIn).Bool(true)
	if env.Attributes.Count() > 0 {
		env.Attributes.WriteToJSONWriter(obj.Name("attributes"))
	}
	obj.End()
	return base64.StdEncoding.EncodeToString(w.Bytes())
}

func decodeEnvironment(header string) (apiproxy.Environment, error) {
	var env apiproxy.Environment
	if header == "" {
		return env, nil
	}
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return env, fmt.Errorf("malformed %s header: %w", environmentHeader, err)
	}
	r := jreader.NewReader(data)
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "appId":
			env.AppID = r.String()
		case "versionId":
			env.VersionID = r.String()
		case "requestId":
			env.RequestID = r.String()
		case "email":
			env.Email = r.String()
		case "authDomain":
			env.AuthDomain = r.String()
		case "admin":
			env.Admin = r.Bool()
		case "loggedIn":
			env.LoggedIn = r.Bool()
		case "attributes":
			env.Attributes.ReadFromJSONReader(&r)
		default:
			_ = r.SkipValue()
		}
	}
	if err := r.Error(); err != nil {
		return apiproxy.Environment{}, fmt.Errorf("malformed %s header: %w", environmentHeader, err)
	}
	return env, nil
}

// errorEnvelope is the JSON body of every failed response.
type errorEnvelope struct {
	kind    string
	service string
	method  string
	code    int
	message string
}

func envelopeFor(service, method string, err error) errorEnvelope {
	var appErr *apiproxy.ApplicationError
	var notFound *apiproxy.CallNotFoundError
	switch {
	case errors.As(err, &appErr):
		return errorEnvelope{kind: errorKindApplication, service: appErr.Service, method: appErr.Method,
			code: appErr.Code, message: appErr.Detail}
	case errors.As(err, &notFound):
		return errorEnvelope{kind: errorKindNotFound, service: notFound.Service, method: notFound.Method}
	default:
		return errorEnvelope{kind: errorKindInternal, service: service, method: method,
			code: apiproxy.CodeInternalError, message: err.Error()}
	}
}

func (e errorEnvelope) bytes() []byte {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("kind").String(e.kind)
	obj.Name("service").String(e.service)
	obj.Name("method").String(e.method)
	obj.Name("code").Int(e.code)
	obj.Maybe("message", e.message != "").String(e.message)
	obj.End()
	return w.Bytes()
}

func parseErrorEnvelope(data []byte) (errorEnvelope, error) {
	var e errorEnvelope
	r := jreader.NewReader(data)
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "kind":
			e.kind = r.String()
		case "service":
			e.service = r.String()
		case "method":
			e.method = r.String()
		case "code":
			e.code = r.Int()
		case "message":
			e.message = r.String()
		default:
			_ = r.SkipValue()
		}
	}
	return e, r.Error()
}

func (e errorEnvelope) toError() error {
	switch e.kind {
	case errorKindNotFound:
		return &apiproxy.CallNotFoundError{Service: e.service, Method: e.method}
	case errorKindApplication:
		return &apiproxy.ApplicationError{Service: e.service, Method: e.method, Code: e.code, Detail: e.message}
	default:
		return fmt.Errorf("remote backend failed on %s: %s", apiproxy.CallKey(e.service, e.method), e.message)
	}
}

func encodeLogRecord(env apiproxy.Environment, rec apiproxy.LogRecord) []byte {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Maybe("appId", env.AppID != "").String(env.AppID)
	obj.Name("level").String(rec.Level.String())
	if !rec.Time.IsZero() {
		obj.Name("time").String(rec.Time.UTC().Format(time.RFC3339Nano))
	}
	obj.Name("message").String(rec.Message)
	obj.End()
	return w.Bytes()
}

func decodeLogRecord(data []byte) (string, apiproxy.LogRecord, error) {
	var app string
	var rec apiproxy.LogRecord
	r := jreader.NewReader(data)
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "appId":
			app = r.String()
		case "level":
			rec.Level = apiproxy.ParseLogLevel(r.String())
		case "time":
			t, err := time.Parse(time.RFC3339Nano, r.String())
			if err == nil {
				rec.Time = t
			}
		case "message":
			rec.Message = r.String()
		default:
			_ = r.SkipValue()
		}
	}
	return app, rec, r.Error()
}

func deadlineValue(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func parseDeadline(s string) time.Duration {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
