package notify

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// EmailChannel delivers notifications over SMTP. Options come from the
// channel config: smtp_host, smtp_port, smtp_username, smtp_password,
// smtp_from, smtp_from_name, smtp_use_tls.
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	useTLS   bool
	logger   arbor.ILogger
}

// NewEmailChannel creates an email channel from channel options
func NewEmailChannel(cfg common.ChannelConfig, logger arbor.ILogger) *EmailChannel {
	opts := cfg.Options
	port := 587
	if p, err := strconv.Atoi(opts["smtp_port"]); err == nil && p > 0 {
		port = p
	}
	useTLS := true
	if v, ok := opts["smtp_use_tls"]; ok {
		useTLS = strings.EqualFold(v, "true") || v == "1"
	}
	fromName := opts["smtp_from_name"]
	if fromName == "" {
		fromName = "Aptus"
	}
	return &EmailChannel{
		host:     opts["smtp_host"],
		port:     port,
		username: opts["smtp_username"],
		password: opts["smtp_password"],
		from:     opts["smtp_from"],
		fromName: fromName,
		useTLS:   useTLS,
		logger:   logger,
	}
}

func (c *EmailChannel) Type() models.ChannelType {
	return models.ChannelEmail
}

func (c *EmailChannel) IsConfigured() bool {
	return c.host != "" && c.username != "" && c.password != "" && c.from != ""
}

// Send delivers one HTML email. The body arrives pre-rendered; this channel
// only wraps it in MIME framing.
func (c *EmailChannel) Send(ctx context.Context, recipient, subject, body string, metadata map[string]string) interfaces.SendResult {
	if !c.IsConfigured() {
		return interfaces.SendResult{Err: fmt.Errorf("email channel not configured")}
	}
	if recipient == "" {
		return interfaces.SendResult{Err: fmt.Errorf("email recipient is empty")}
	}

	msg := c.buildMessage(recipient, subject, body)
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	auth := smtp.PlainAuth("", c.username, c.password, c.host)

	var err error
	if c.useTLS {
		err = c.sendWithTLS(addr, auth, recipient, msg)
	} else {
		err = smtp.SendMail(addr, auth, c.from, []string{recipient}, []byte(msg))
	}
	if err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("smtp send failed: %w", err)}
	}

	c.logger.Debug().
		Str("to", MaskRecipient(recipient)).
		Str("subject", subject).
		Msg("Email sent")
	return interfaces.SendResult{Success: true}
}

func (c *EmailChannel) buildMessage(to, subject, htmlBody string) string {
	boundary := generateBoundary()
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", c.fromName, c.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	// Base64 keeps every line under the RFC 5322 limit regardless of content
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
	msg.WriteString("\r\n")
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return msg.String()
}

// sendWithTLS connects over direct TLS, falling back to STARTTLS when the
// server does not accept implicit TLS on the configured port
func (c *EmailChannel) sendWithTLS(addr string, auth smtp.Auth, to, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: c.host})
	if err != nil {
		return c.sendWithSTARTTLS(addr, auth, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return c.transact(client, auth, to, msg)
}

func (c *EmailChannel) sendWithSTARTTLS(addr string, auth smtp.Auth, to, msg string) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	return c.transact(client, auth, to, msg)
}

func (c *EmailChannel) transact(client *smtp.Client, auth smtp.Auth, to, msg string) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set mail recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "aptus_boundary_fallback"
	}
	return fmt.Sprintf("aptus_%x", b)
}

// encodeBase64WithLineBreaks encodes content with 76-char lines per RFC 2045
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76
	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}
	return result.String()
}
