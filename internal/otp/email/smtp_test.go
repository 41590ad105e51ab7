package email

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"

	"haritsetu/backend/internal/otp"
)

type recordingDialer struct {
	err   error
	block chan struct{}
	sent  []*gomail.Message
}

func (d *recordingDialer) DialAndSend(ctx context.Context, m ...*gomail.Message) error {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.sent = append(d.sent, m...)
	return d.err
}

var testMsg = otp.Message{Code: "482913", Text: "Your verification code is: 482913. Valid for 10 minutes.", TTL: 10 * time.Minute}

func TestSend_WritesMessage(t *testing.T) {
	d := &recordingDialer{}
	s := NewSenderWithDialer("noreply@haritsetu.in", d)

	id, err := s.Send(context.Background(), "farmer@demo.com", testMsg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id == "" {
		t.Error("empty message id")
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(d.sent))
	}
	m := d.sent[0]
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "farmer@demo.com" {
		t.Errorf("To = %v", got)
	}
	if got := m.GetHeader("Message-ID"); len(got) != 1 || !strings.Contains(got[0], id) {
		t.Errorf("Message-ID = %v, want to contain %q", got, id)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "482913") {
		t.Error("body does not contain the code")
	}
}

func TestSend_DialerError(t *testing.T) {
	s := NewSenderWithDialer("noreply@haritsetu.in", &recordingDialer{err: errors.New("535 auth failed")})
	if _, err := s.Send(context.Background(), "farmer@demo.com", testMsg); err == nil {
		t.Fatal("expected error")
	}
}

func TestSend_RejectsPhone(t *testing.T) {
	s := NewSenderWithDialer("noreply@haritsetu.in", &recordingDialer{})
	if _, err := s.Send(context.Background(), "+919876543210", testMsg); !errors.Is(err, otp.ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestSend_NotConfigured(t *testing.T) {
	s := NewSender("", 587, "", "", "")
	if _, err := s.Send(context.Background(), "farmer@demo.com", testMsg); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSend_ContextDeadline(t *testing.T) {
	d := &recordingDialer{block: make(chan struct{})}
	defer close(d.block)
	s := NewSenderWithDialer("noreply@haritsetu.in", d)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Send(ctx, "farmer@demo.com", testMsg); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

// fakeSMTP accepts one connection and speaks just enough SMTP to take a message.
// With stall set it accepts the connection and never greets.
func fakeSMTP(t *testing.T, stall bool) (host string, port int, got <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if stall {
			_, _ = conn.Read(make([]byte, 1))
			return
		}
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.Fields(line + " x")[0]); cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, _ := tp.ReadDotBytes()
				out <- string(body)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 ok")
			}
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, out
}

func TestNewSender_DeliversOverSMTP(t *testing.T) {
	host, port, got := fakeSMTP(t, false)
	s := NewSender(host, port, "", "", "noreply@haritsetu.in")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Send(ctx, "farmer@demo.com", testMsg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case body := <-got:
		if !strings.Contains(body, "482913") {
			t.Errorf("delivered body does not contain the code: %q", body)
		}
	case <-time.After(time.Second):
		t.Fatal("server received no message")
	}
}

func TestNewSender_DeadlineClosesConnection(t *testing.T) {
	host, port, _ := fakeSMTP(t, true)
	s := NewSender(host, port, "", "", "noreply@haritsetu.in")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := s.Send(ctx, "farmer@demo.com", testMsg)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Send returned after %v, want it bounded by the deadline", elapsed)
	}
}
