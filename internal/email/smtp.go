package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

// SMTPSender delivers messages over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	timeout   time.Duration
}

// NewSMTPSender creates an SMTPSender with the given credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string, timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
		timeout:   timeout,
	}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) (SendResult, error) {
	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), s.host)

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return SendResult{}, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return SendResult{}, fmt.Errorf("smtp to: %w", err)
	}
	msg.SetMessageIDWithValue(messageID)
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, m.HTML)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.timeout),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return SendResult{}, fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return SendResult{}, fmt.Errorf("smtp send: %w", err)
	}

	return SendResult{MessageID: messageID}, nil
}
