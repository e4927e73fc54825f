// Package mailer submits rendered receipt documents to a smarthost.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// DeliveryError represents a delivery error with type information.
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporaryError reports whether the error is worth retrying.
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}

// Signer adds a DKIM-Signature header to an assembled message.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	Domain() string
}

// Config holds smarthost connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Hostname string
	Timeout  time.Duration
}

// Message is a single outbound receipt email.
type Message struct {
	FromName string
	To       string
	Subject  string
	HTML     string
}

// Mailer assembles RFC 5322 messages and submits them over SMTP.
type Mailer struct {
	cfg    Config
	signer Signer
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(cfg Config, logger *slog.Logger) *Mailer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Mailer{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// SetSigner enables DKIM signing of outgoing messages.
func (m *Mailer) SetSigner(s Signer) {
	m.signer = s
}

// Send assembles and submits the message to the configured smarthost.
func (m *Mailer) Send(ctx context.Context, msg *Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return &DeliveryError{
			Temporary: false,
			Message:   fmt.Sprintf("invalid recipient %q: %v", msg.To, err),
		}
	}

	data, err := m.buildMessage(msg)
	if err != nil {
		return &DeliveryError{
			Temporary: false,
			Message:   fmt.Sprintf("message assembly failed: %v", err),
		}
	}

	if m.signer != nil {
		signed, err := m.signer.Sign(data)
		if err != nil {
			m.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", m.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Hello(m.heloName()); err != nil {
		return categorizeError(err, "HELO")
	}

	if m.cfg.Username != "" {
		auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.SendMail(m.cfg.From, []string{msg.To}, bytes.NewReader(data)); err != nil {
		return categorizeError(err, "submission")
	}

	client.Quit()

	m.logger.Info("message delivered",
		"host", m.cfg.Host,
		"from", m.cfg.From,
		"to", msg.To,
	)
	return nil
}

// dial connects to the smarthost. Port 465 means implicit TLS, anything
// else starts plaintext and upgrades with STARTTLS.
func (m *Mailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(m.now().Add(m.cfg.Timeout))
	}

	tlsConfig := &tls.Config{
		ServerName: m.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	if m.cfg.Port == 465 {
		return smtp.NewClient(tls.Client(conn, tlsConfig)), nil
	}

	client, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		conn.Close()
		return nil, categorizeError(err, "STARTTLS")
	}
	return client, nil
}

func (m *Mailer) heloName() string {
	if m.cfg.Hostname != "" {
		return m.cfg.Hostname
	}
	return "localhost"
}

// buildMessage assembles the RFC 5322 message with a quoted-printable
// HTML body.
func (m *Mailer) buildMessage(msg *Message) ([]byte, error) {
	from := mail.Address{Name: msg.FromName, Address: m.cfg.From}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", m.newID(), m.messageIDDomain())
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	buf.WriteString("\r\n")

	return buf.Bytes(), nil
}

func (m *Mailer) messageIDDomain() string {
	if at := strings.LastIndex(m.cfg.From, "@"); at >= 0 && at < len(m.cfg.From)-1 {
		return m.cfg.From[at+1:]
	}
	return m.heloName()
}

// smtpCodePattern matches SMTP response codes at word boundaries.
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent.
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		if strings.HasPrefix(matches[1], "5") {
			return &DeliveryError{Temporary: false, Message: msg}
		}
		return &DeliveryError{Temporary: true, Message: msg}
	}

	return &DeliveryError{Temporary: true, Message: msg}
}
