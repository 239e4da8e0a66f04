package localmail

import (
	"context"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/wire"
)

func TestSendKeepsMessage(t *testing.T) {
	testLog := ldlogtest.NewMockLog()
	defer testLog.DumpIfTestFailed(t)
	s := New(Options{LogBodies: true}, testLog.Loggers)

	msg := wire.MailMessage{Sender: "a@example.com", To: []string{"b@example.com"}, Subject: "Hi", TextBody: "hello"}
	_, err := s.Call(context.Background(), apiproxy.Environment{}, wire.MethodSend, msg.Encode())
	require.NoError(t, err)

	assert.Equal(t, []wire.MailMessage{msg}, s.Sent())
	assert.True(t, testLog.HasMessageMatch(ldlog.Info, "hello"))

	s.Reset()
	assert.Len(t, s.Sent(), 0)
}

func TestSendRejectsInvalidMessages(t *testing.T) {
	s := New(Options{}, ldlog.NewDisabledLoggers())
	for name, msg := range map[string]wire.MailMessage{
		"no sender":     {To: []string{"b@example.com"}, TextBody: "x"},
		"no recipients": {Sender: "a@example.com", TextBody: "x"},
		"no body":       {Sender: "a@example.com", To: []string{"b@example.com"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Call(context.Background(), apiproxy.Environment{}, wire.MethodSend, msg.Encode())
			var appErr *apiproxy.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apiproxy.CodeBadRequest, appErr.Code)
		})
	}
	assert.Len(t, s.Sent(), 0)
}

func TestSendToAdmins(t *testing.T) {
	s := New(Options{Admins: []string{"admin@example.com"}}, ldlog.NewDisabledLoggers())
	msg := wire.MailMessage{Sender: "a@example.com", To: []string{"ignored@example.com"}, TextBody: "x"}
	_, err := s.Call(context.Background(), apiproxy.Environment{}, wire.MethodSendToAdmins, msg.Encode())
	require.NoError(t, err)

	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"admin@example.com"}, sent[0].To)
}
