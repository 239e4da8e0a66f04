package remoteapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/launchdarkly/eventsource"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
)

// Server exposes a Delegate over HTTP.
type Server struct {
	delegate apiproxy.Delegate
	router   *mux.Router
	streams  *eventsource.Server
	status   func() map[string]string
	loggers  ldlog.Loggers
}

// ServerOption configures a Server.
type ServerOption helpers.ConfigOption[Server]

// ServerLoggers sets the loggers of the server.
func ServerLoggers(loggers ldlog.Loggers) ServerOption {
	return helpers.OptionFunc[Server](func(s *Server) error {
		s.loggers = loggers
		return nil
	})
}

// ServerStatus sets a function whose result is reported, as string properties, by the status
// resource.
func ServerStatus(fn func() map[string]string) ServerOption {
	return helpers.OptionFunc[Server](func(s *Server) error {
		s.status = fn
		return nil
	})
}

type logEvent struct {
	id   string
	data []byte
}

func (e logEvent) Id() string    { return e.id }
func (e logEvent) Event() string { return logEventName }
func (e logEvent) Data() string  { return string(e.data) }

// NewServer creates a server that forwards every call to delegate.
func NewServer(delegate apiproxy.Delegate, options ...ServerOption) *Server {
	s := &Server{
		delegate: delegate,
		router:   mux.NewRouter(),
		loggers:  ldlog.NewDisabledLoggers(),
	}
	_ = helpers.ApplyOptions(s, options...)

	s.streams = eventsource.NewServer()
	s.streams.Logger = s.loggers.ForLevel(ldlog.Debug)

	s.router.HandleFunc("/", s.getStatus).Methods("GET", "HEAD")
	s.router.HandleFunc(callsPathPrefix+"{service}/{method}", s.postCall).Methods("POST")
	s.router.HandleFunc(logPath, s.postLog).Methods("POST")
	s.router.HandleFunc(logsPath, s.streams.Handler(logsChannel)).Methods("GET")
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends every open log stream.
func (s *Server) Close() {
	s.streams.Close()
}

// PublishLog sends a log record to every open log stream.
func (s *Server) PublishLog(env apiproxy.Environment, rec apiproxy.LogRecord) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	s.streams.Publish([]string{logsChannel}, logEvent{
		id:   fmt.Sprintf("%d", rec.Time.UnixNano()),
		data: encodeLogRecord(env, rec),
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == "HEAD" {
		return
	}
	status := map[string]string{"status": "ok"}
	if s.status != nil {
		for k, v := range s.status() {
			status[k] = v
		}
	}
	_, _ = w.Write(helpers.AsJSON(status))
}

func (s *Server) postCall(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	service, method := vars["service"], vars["method"]
	env, err := decodeEnvironment(r.Header.Get(environmentHeader))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errorEnvelope{kind: errorKindInternal, service: service,
			method: method, code: apiproxy.CodeBadRequest, message: err.Error()})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, envelopeFor(service, method, err))
		return
	}

	ctx := r.Context()
	if d := parseDeadline(r.Header.Get(deadlineHeader)); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	resp, err := s.delegate.MakeSyncCall(ctx, env, service, method, body)
	if err != nil {
		envelope := envelopeFor(service, method, apiproxy.Cause(err))
		status := http.StatusInternalServerError
		if envelope.kind == errorKindNotFound {
			status = http.StatusNotFound
		}
		s.loggers.Debugf("%s failed: %s", apiproxy.CallKey(service, method), err)
		s.writeError(w, status, envelope)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (s *Server) postLog(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvironment(r.Header.Get(environmentHeader))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, _ := io.ReadAll(r.Body)
	_, rec, err := decodeLogRecord(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.delegate.Log(r.Context(), env, rec)
	s.PublishLog(env, rec)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeError(w http.ResponseWriter, status int, e errorEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.bytes())
}
