package mail

import (
	"context"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/wire"
)

// Send sends a message to its recipients.
func Send(ctx context.Context, msg wire.MailMessage) error {
	_, err := apiproxy.MakeSyncCall(ctx, wire.MailService, wire.MethodSend, msg.Encode())
	return err
}

// SendToAdmins sends a message to the administrators of the application. Recipients set on the
// message are ignored by the backend.
func SendToAdmins(ctx context.Context, msg wire.MailMessage) error {
	_, err := apiproxy.MakeSyncCall(ctx, wire.MailService, wire.MethodSendToAdmins, msg.Encode())
	return err
}
