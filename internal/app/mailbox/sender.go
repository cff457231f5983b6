package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/hickar/mailgate/internal/app/config"
)

// SMTPConn is the narrow submission-protocol surface a Sender drives.
// *smtp.Client satisfies it; tests substitute a mock.
type SMTPConn interface {
	Auth(client sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
}

// SMTPDialer opens a submission-protocol connection for the given endpoint.
type SMTPDialer func(cfg config.Mailbox) (SMTPConn, error)

// DialSMTP opens a TLS (or STARTTLS-upgraded) SMTP connection bounded by the
// configured dial timeout.
func DialSMTP(cfg config.Mailbox) (SMTPConn, error) {
	tlsConfig := &tls.Config{ServerName: cfg.Host}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	if cfg.TLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", cfg.Addr(), tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn), nil
	}

	conn, err := dialer.Dial("tcp", cfg.Addr())
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

// Sender transmits outgoing mail through the configured submission relay,
// opening one connection per message.
type Sender struct {
	cfg    config.Mailbox
	dial   SMTPDialer
	logger *slog.Logger
}

func NewSender(cfg config.Mailbox, dial SMTPDialer, logger *slog.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
	}
}

// Send composes a single-part MIME message with the given body subtype
// ("plain" or "html") and transmits it. Validation runs before any network
// connection is attempted; remote rejection wraps ErrDelivery. The connection
// is closed on every exit path.
func (s *Sender) Send(ctx context.Context, to, subject, body, subtype string) error {
	if to == "" {
		return fmt.Errorf("%w: to", ErrValidation)
	}
	if subject == "" {
		return fmt.Errorf("%w: subject", ErrValidation)
	}
	if body == "" {
		return fmt.Errorf("%w: body", ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if subtype != "html" {
		subtype = "plain"
	}
	raw, err := buildMessage(s.cfg.Address, to, subject, body, subtype)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	conn, err := s.dial(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, s.cfg.Addr(), err)
	}
	defer func() {
		_ = conn.Quit()
	}()

	if err = conn.Auth(sasl.NewPlainClient("", s.cfg.Address, s.cfg.Password)); err != nil {
		return fmt.Errorf("%w: login as %s: %v", ErrAuthentication, s.cfg.Address, err)
	}

	if err = conn.SendMail(s.cfg.Address, []string{to}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	s.logger.InfoContext(ctx, "message sent", slog.String("to", to))
	return nil
}

func buildMessage(from, to, subject, body, subtype string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/"+subtype, map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err = io.WriteString(w, body); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
