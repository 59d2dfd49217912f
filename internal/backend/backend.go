// Package backend receives inbound messages over SMTP and hands them to
// the ingestion pipeline.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"

	"github.com/emersion/go-smtp"
	"github.com/ksdme/mailhook/internal/pipeline"
	"github.com/pkg/errors"
)

// Processes a complete message. Implemented by pipeline.Pipeline.
type Handler interface {
	Handle(ctx context.Context, raw []byte, transport pipeline.Transport) pipeline.Outcome
}

func NewBackend(handler Handler, relay *Relay) *backend {
	return &backend{handler: handler, relay: relay}
}

// The SMTP server backend. It only accepts inbound messages, the relay
// is used for forwarding messages that could not be processed.
type backend struct {
	handler Handler
	relay   *Relay
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{handler: b.handler, relay: b.relay}, nil
}

// A session on the backend.
type session struct {
	handler    Handler
	relay      *Relay
	from       string
	recipients []string
}

// Handles the MAIL command. Senders are not filtered here, the blocklist
// looks at the From header of the message instead.
func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	slog.Debug("> MAIL", "from", from)
	s.from = from
	return nil
}

// Handles the RCPT command. Each instance of this command specifies a
// recipient email address.
func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	slog.Debug("> RCPT", "to", to)
	s.recipients = append(s.recipients, to)
	return nil
}

// Handles the DATA command. The message is read in full and run through
// the pipeline once, regardless of the number of recipients.
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "could not read message")
	}
	slog.Debug("> DATA", "from", s.from, "recipients", len(s.recipients), "bytes", len(raw))

	d := &delivery{relay: s.relay, from: s.from, raw: raw}
	s.handler.Handle(context.Background(), raw, d)

	if d.rejected != "" {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      d.rejected,
		}
	}
	return nil
}

// Perform clean up on this session.
func (s *session) Logout() error {
	return nil
}

// Handles the RSET command. It aborts the current mail transaction so the
// sender can reuse the connection for another message.
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// The transport capabilities of a single message received over SMTP.
// A reject is answered once the pipeline returns, as the DATA reply.
type delivery struct {
	relay    *Relay
	from     string
	raw      []byte
	rejected string
}

func (d *delivery) Reject(reason string) error {
	d.rejected = reason
	return nil
}

func (d *delivery) Forward(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.relay.Send(d.from, []string{address}, d.raw)
}

// Relays messages through another SMTP server.
type Relay struct {
	addr string
}

func NewRelay(addr string) *Relay {
	return &Relay{addr: addr}
}

func (r *Relay) Send(from string, to []string, raw []byte) error {
	if r == nil || r.addr == "" {
		return errors.New("no relay is configured")
	}

	if err := r.send(from, to, raw); err != nil {
		return errors.Wrapf(err, "could not relay message through %s", r.addr)
	}

	slog.Debug("relayed message", "relay", r.addr, "to", to)
	return nil
}

// STARTTLS is used when the relay offers it, plain relays on a private
// network are accepted as well.
func (r *Relay) send(from string, to []string, raw []byte) error {
	c, err := smtp.Dial(r.addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		host, _, err := net.SplitHostPort(r.addr)
		if err != nil {
			return err
		}
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return errors.Wrap(err, "could not start tls")
		}
	}

	if err := c.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		return err
	}
	return c.Quit()
}
