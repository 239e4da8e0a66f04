// Package localmail is the in-process implementation of the mail service. It delivers nothing;
// messages are logged and kept in memory until Reset.
package localmail

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/wire"
)

// Options is the content of the mail manifest.
type Options struct {
	LogBodies bool     `yaml:"log_bodies"`
	Admins    []string `yaml:"admins"`
}

// Service is the local mail service.
type Service struct {
	*localapi.MethodTable
	options Options
	sent    []wire.MailMessage
	loggers ldlog.Loggers
	lock    sync.Mutex
}

// NewFactory returns the factory that builds the service from its manifest.
func NewFactory() localapi.Factory {
	return localapi.FactoryFunc{
		Name: wire.MailService,
		Build: func(m localapi.Manifest, _ string, loggers ldlog.Loggers) (localapi.Service, error) {
			var opts Options
			if err := m.Decode(&opts); err != nil {
				return nil, err
			}
			return New(opts, loggers), nil
		},
	}
}

func New(opts Options, loggers ldlog.Loggers) *Service {
	s := &Service{
		MethodTable: localapi.NewMethodTable(wire.MailService, loggers),
		options:     opts,
		loggers:     loggers,
	}
	s.Add(wire.MethodSend, s.send)
	s.Add(wire.MethodSendToAdmins, s.sendToAdmins)
	return s
}

func (s *Service) Close() error { return nil }

func (s *Service) send(_ context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	msg, err := s.decode(wire.MethodSend, request)
	if err != nil {
		return nil, err
	}
	if len(msg.Recipients()) == 0 {
		return nil, localapi.BadRequest(wire.MailService, wire.MethodSend, errors.New("message has no recipients"))
	}
	s.deliver(msg)
	return nil, nil
}

func (s *Service) sendToAdmins(_ context.Context, env apiproxy.Environment, request []byte) ([]byte, error) {
	msg, err := s.decode(wire.MethodSendToAdmins, request)
	if err != nil {
		return nil, err
	}
	msg.To = append([]string(nil), s.options.Admins...)
	if len(msg.To) == 0 && env.Email != "" && env.Admin {
		msg.To = []string{env.Email}
	}
	msg.Cc, msg.Bcc = nil, nil
	s.deliver(msg)
	return nil, nil
}

func (s *Service) decode(method string, request []byte) (wire.MailMessage, error) {
	msg, err := wire.DecodeMailMessage(request)
	if err != nil {
		return msg, localapi.BadRequest(wire.MailService, method, err)
	}
	if msg.Sender == "" {
		return msg, localapi.BadRequest(wire.MailService, method, errors.New("message has no sender"))
	}
	if msg.TextBody == "" && msg.HTMLBody == "" {
		return msg, localapi.BadRequest(wire.MailService, method, errors.New("message has no body"))
	}
	return msg, nil
}

func (s *Service) deliver(msg wire.MailMessage) {
	s.loggers.Infof("Mail from %s to [%s]: %q", msg.Sender, strings.Join(msg.Recipients(), ", "), msg.Subject)
	if s.options.LogBodies {
		if msg.TextBody != "" {
			s.loggers.Infof("Body (text):\n%s", msg.TextBody)
		}
		if msg.HTMLBody != "" {
			s.loggers.Infof("Body (html):\n%s", msg.HTMLBody)
		}
	}
	s.lock.Lock()
	s.sent = append(s.sent, msg)
	s.lock.Unlock()
}

// Sent returns a copy of the messages accepted so far.
func (s *Service) Sent() []wire.MailMessage {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]wire.MailMessage(nil), s.sent...)
}

// Reset forgets every accepted message.
func (s *Service) Reset() {
	s.lock.Lock()
	s.sent = nil
	s.lock.Unlock()
}
