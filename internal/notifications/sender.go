package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

const implicitTLSPort = "465"

type Email struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, email Email) error
}

var _ Sender = (*SMTPSender)(nil)
var _ Sender = (*NoopSender)(nil)

// SMTPSender delivers mail with STARTTLS (587) or implicit TLS (465).
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	fromName string
}

func NewSMTPSender(host, port, username, password, fromName string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		fromName: fromName,
	}
}

func (s *SMTPSender) from() string {
	return (&mailAddress{name: s.fromName, address: s.username}).String()
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	msg, err := buildMessage(s.from(), email, time.Now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	addr := net.JoinHostPort(s.host, s.port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	if s.port == implicitTLSPort {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() {
		if err := client.Quit(); err != nil {
			log.Tracef("smtp quit: %s", err)
		}
	}()

	if s.port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if s.password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(s.username); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(email.To); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return nil
}

// NoopSender only logs; used when no SMTP host is configured.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, email Email) error {
	log.Debugf("email sending disabled, dropping [%s] to %s", email.Subject, email.To)
	return nil
}

type mailAddress struct {
	name    string
	address string
}

func (a *mailAddress) String() string {
	if a.name == "" {
		return "<" + a.address + ">"
	}
	return mime.QEncoding.Encode("utf-8", a.name) + " <" + a.address + ">"
}

// buildMessage renders a multipart/alternative message with a plain text and an html part.
func buildMessage(from string, email Email, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.SetBoundary("portfolio-" + ulid.Make().String()); err != nil {
		return nil, err
	}

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", email.Text},
		{"text/html; charset=utf-8", email.HTML},
	} {
		if part.content == "" {
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Type", part.contentType)
		h.Set("Content-Transfer-Encoding", "8bit")
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	header := func(key, value string) {
		msg.WriteString(key + ": " + value + "\r\n")
	}
	header("From", from)
	header("To", email.To)
	if email.ReplyTo != "" {
		header("Reply-To", email.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}
