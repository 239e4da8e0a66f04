package wire

// MailService is the name of the mail backend service.
const MailService = "mail"

// Mail methods.
const (
	MethodSend         = "Send"
	MethodSendToAdmins = "SendToAdmins"
)

// Attachment is a file attached to a mail message.
type Attachment struct {
	FileName string
	Data     []byte
}

// MailMessage is the request of every mail send operation.
type MailMessage struct {
	Sender      string
	ReplyTo     string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
	Headers     []Header
}

// Recipients returns To, Cc and Bcc in that order.
func (m MailMessage) Recipients() []string {
	ret := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	ret = append(ret, m.To...)
	ret = append(ret, m.Cc...)
	return append(ret, m.Bcc...)
}

func (m MailMessage) Encode() []byte {
	var e encoder
	e.string(1, m.Sender)
	e.string(2, m.ReplyTo)
	e.strings(3, m.To)
	e.strings(4, m.Cc)
	e.strings(5, m.Bcc)
	e.string(6, m.Subject)
	e.string(7, m.TextBody)
	e.string(8, m.HTMLBody)
	for _, a := range m.Attachments {
		a := a
		e.message(9, func(e *encoder) {
			e.string(1, a.FileName)
			e.bytes(2, a.Data)
		})
	}
	encodeHeaders(&e, 11, m.Headers)
	return e.b
}

// DecodeMailMessage decodes the request payload of a mail send operation.
func DecodeMailMessage(payload []byte) (MailMessage, error) {
	var m MailMessage
	err := eachField("MailMessage", payload, func(f field) (err error) {
		var s string
		switch f.num {
		case 1:
			m.Sender, err = f.asString("sender")
		case 2:
			m.ReplyTo, err = f.asString("reply_to")
		case 3:
			s, err = f.asString("to")
			m.To = append(m.To, s)
		case 4:
			s, err = f.asString("cc")
			m.Cc = append(m.Cc, s)
		case 5:
			s, err = f.asString("bcc")
			m.Bcc = append(m.Bcc, s)
		case 6:
			m.Subject, err = f.asString("subject")
		case 7:
			m.TextBody, err = f.asString("text_body")
		case 8:
			m.HTMLBody, err = f.asString("html_body")
		case 9:
			var a Attachment
			a, err = decodeAttachment(f)
			m.Attachments = append(m.Attachments, a)
		case 11:
			var h Header
			h, err = decodeHeader("MailMessage", f)
			m.Headers = append(m.Headers, h)
		}
		return err
	})
	if err != nil {
		return MailMessage{}, err
	}
	return m, nil
}

func decodeAttachment(f field) (Attachment, error) {
	data, err := f.asMessage("attachment")
	if err != nil {
		return Attachment{}, err
	}
	var a Attachment
	err = eachField("MailMessage.attachment", data, func(f field) (err error) {
		switch f.num {
		case 1:
			a.FileName, err = f.asString("file_name")
		case 2:
			a.Data, err = f.asBytes("data")
		}
		return err
	})
	return a, err
}
