package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"Workbench/Config"
)

// Message is a single outgoing email.
type Message struct {
	To      []string
	CC      []string
	BCC     []string
	Subject string
	Body    string
	IsHTML  bool
}

// Sender delivers messages. Controllers depend on this, not on SMTP.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// New returns an SMTP sender when a server is configured and a logging
// sender otherwise.
func New(cfg Config.SMTPConfig) Sender {
	if !cfg.Enabled() {
		return LogSender{}
	}
	return &SMTPSender{Config: cfg}
}

type SMTPSender struct {
	Config Config.SMTPConfig
}

// Send sends an email using the configured server
func (s *SMTPSender) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	config := s.Config

	body := buildMessage(config, message)

	auth := smtp.PlainAuth("", config.Username, config.Password, config.Server)

	var recipients []string
	recipients = append(recipients, message.To...)
	recipients = append(recipients, message.CC...)
	recipients = append(recipients, message.BCC...)

	serverAddr := fmt.Sprintf("%s:%d", config.Server, config.Port)

	if !config.TLSEnabled {
		if err := smtp.SendMail(serverAddr, auth, config.FromEmail, recipients, []byte(body)); err != nil {
			return fmt.Errorf("sending mail: %w", err)
		}
		return nil
	}

	tlsConfig := &tls.Config{
		ServerName:         config.Server,
		InsecureSkipVerify: config.SkipTLSCheck,
	}

	conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, config.Server)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err = client.Mail(config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data connection: %w", err)
	}
	if _, err = w.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data connection: %w", err)
	}

	return client.Quit()
}

// buildMessage renders headers in a fixed order followed by the body.
func buildMessage(config Config.SMTPConfig, message Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", config.FromName, config.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(message.To, ", "))
	if len(message.CC) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(message.CC, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", message.Subject)
	if message.IsHTML {
		b.WriteString("MIME-Version: 1.0\r\n")
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(message.Body)
	return b.String()
}

// LogSender only logs. Used in development when SMTP is not configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, message Message) error {
	slog.InfoContext(ctx, "Email not sent, SMTP disabled",
		"to", message.To,
		"subject", message.Subject,
	)
	return nil
}
