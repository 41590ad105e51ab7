// Package email delivers fallback OTP codes over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"haritsetu/backend/internal/identifier"
	"haritsetu/backend/internal/otp"
)

const subject = "HaritSetu verification code"

// ErrNotConfigured is returned when no SMTP host or sender address is set.
var ErrNotConfigured = errors.New("email: SMTP not configured")

// Dialer delivers composed messages. It must stop all network I/O once ctx is done,
// so a message is never delivered after Send has reported failure.
type Dialer interface {
	DialAndSend(ctx context.Context, m ...*gomail.Message) error
}

// Sender is an otp.Messenger that mails the code text to email identifiers.
type Sender struct {
	from   string
	dialer Dialer
}

// NewSender returns a Sender that talks SMTP to host:port with the given credentials.
// Port 465 uses implicit TLS; other ports upgrade with STARTTLS when offered.
func NewSender(host string, port int, username, password, from string) *Sender {
	var d Dialer
	if host != "" {
		d = &contextDialer{Dialer: gomail.NewDialer(host, port, username, password)}
	}
	if from == "" {
		from = username
	}
	return &Sender{from: from, dialer: d}
}

// NewSenderWithDialer returns a Sender using d. Intended for tests.
func NewSenderWithDialer(from string, d Dialer) *Sender {
	return &Sender{from: from, dialer: d}
}

// Send mails msg.Text to to and returns the generated Message-ID. When ctx ends first the
// connection is torn down and ctx.Err() is returned.
func (s *Sender) Send(ctx context.Context, to identifier.Identifier, msg otp.Message) (string, error) {
	if s.dialer == nil || s.from == "" {
		return "", ErrNotConfigured
	}
	if to.Kind() != identifier.KindEmail {
		return "", otp.ErrNoRoute
	}
	id := uuid.New().String()
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to.String())
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@haritsetu>", id))
	m.SetBody("text/plain", msg.Text)

	if err := s.dialer.DialAndSend(ctx, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("email: send: %w", err)
	}
	return id, nil
}

// contextDialer takes its settings from a gomail.Dialer but owns the connection, so
// ctx cancellation closes the socket instead of leaving a send running in the background.
type contextDialer struct {
	*gomail.Dialer
}

func (d *contextDialer) DialAndSend(ctx context.Context, msgs ...*gomail.Message) error {
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	tlsConfig := d.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: d.Host}
	}
	if d.SSL {
		conn = tls.Client(conn, tlsConfig)
	}
	c, err := smtp.NewClient(conn, d.Host)
	if err != nil {
		return err
	}
	defer c.Close()
	if d.LocalName != "" {
		if err := c.Hello(d.LocalName); err != nil {
			return err
		}
	}
	if !d.SSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if d.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", d.Username, d.Password, d.Host)); err != nil {
				return err
			}
		}
	}

	send := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
	if err := gomail.Send(send, msgs...); err != nil {
		return err
	}
	return c.Quit()
}
