package notifications

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const implicitTLSPort = 465

// SMTPConfig configures the email relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username when empty.
	From    string
	Timeout time.Duration
}

// SMTPMailer sends HTML email with optional attachments. Port 465 uses implicit TLS; any other port
// upgrades with STARTTLS when the server offers it.
type SMTPMailer struct {
	addr    string
	host    string
	port    int
	auth    smtp.Auth
	from    string
	timeout time.Duration
	now     func() time.Time
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

var _ EmailSender = (*SMTPMailer)(nil)

// NewSMTPMailer validates cfg and constructs a mailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("smtp: host is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, errors.New("smtp: sender address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	dialer := &net.Dialer{}
	return &SMTPMailer{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		host:    host,
		port:    port,
		auth:    auth,
		from:    from,
		timeout: timeout,
		now:     time.Now,
		dial:    dialer.DialContext,
	}, nil
}

func (m *SMTPMailer) Configured() bool { return m != nil }

func (m *SMTPMailer) SendEmail(ctx context.Context, email Email) error {
	to := strings.TrimSpace(email.To)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return ErrInvalidRecipient
	}
	msg, err := buildMessage(m.from, email, m.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	conn, err := m.dial(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("smtp: dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if m.port == implicitTLSPort {
		conn = tls.Client(conn, &tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12})
	}
	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp: handshake: %w", err)
	}
	defer client.Close()

	if m.port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("smtp: starttls: %w", err)
			}
		}
	}
	if m.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(m.auth); err != nil {
				return fmt.Errorf("smtp: auth: %w", err)
			}
		}
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp: rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: close data: %w", err)
	}
	return client.Quit()
}

// buildMessage renders a MIME message; attachments turn it into multipart/mixed.
func buildMessage(from string, email Email, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := textproto.MIMEHeader{}
	header.Set("From", from)
	header.Set("To", strings.TrimSpace(email.To))
	header.Set("Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	header.Set("Date", now.Format(time.RFC1123Z))
	header.Set("MIME-Version", "1.0")

	if len(email.Attachments) == 0 {
		header.Set("Content-Type", `text/html; charset="utf-8"`)
		header.Set("Content-Transfer-Encoding", "base64")
		writeHeader(&buf, header)
		writeBase64(&buf, []byte(email.HTML))
		return buf.Bytes(), nil
	}

	boundary, err := randomBoundary()
	if err != nil {
		return nil, err
	}
	header.Set("Content-Type", fmt.Sprintf(`multipart/mixed; boundary="%s"`, boundary))
	writeHeader(&buf, header)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=\"utf-8\"\r\nContent-Transfer-Encoding: base64\r\n\r\n")
	writeBase64(&buf, []byte(email.HTML))
	for _, att := range email.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		filename := mime.QEncoding.Encode("utf-8", att.Filename)
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s\r\nContent-Transfer-Encoding: base64\r\nContent-Disposition: attachment; filename=\"%s\"\r\n\r\n", contentType, filename)
		writeBase64(&buf, att.Content)
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, header textproto.MIMEHeader) {
	for _, key := range []string{"From", "To", "Subject", "Date", "MIME-Version", "Content-Type", "Content-Transfer-Encoding"} {
		if value := header.Get(key); value != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", key, value)
		}
	}
	buf.WriteString("\r\n")
}

// writeBase64 wraps encoded content at 76 columns.
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
}

func randomBoundary() (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("smtp: boundary: %w", err)
	}
	return "bw-" + hex.EncodeToString(b[:]), nil
}
