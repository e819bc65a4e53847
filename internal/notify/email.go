package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"auditwatch/internal/models"
)

const (
	defaultSubjectTemplate = `[{{upper .Severity}}] {{.RuleName.EN}} - {{.TargetName}}`
	defaultBodyTemplate    = `{{.Message}}
{{.MessageAR}}

Rule: {{.RuleName.EN}} ({{.RuleID}})
Target: {{.TargetName}} ({{.TargetID}})
Severity: {{.Severity}}
Fired at: {{.FiredAt.Format "2006-01-02T15:04:05Z07:00"}}
Alert ID: {{.ID}}
`
	defaultFrom     = "auditwatch@localhost"
	defaultSMTPPort = 587
)

// Mail is a rendered email ready for transport
type Mail struct {
	From    string
	To      []string
	Subject string
	Body    string

	Host     string
	Port     int
	Username string
	Password string
}

// MailSender transmits a rendered email
type MailSender interface {
	SendMail(ctx context.Context, m Mail) error
}

// EmailSender renders subject and body templates for email channels
type EmailSender struct {
	mailer MailSender
}

func NewEmailSender(mailer MailSender) *EmailSender {
	return &EmailSender{mailer: mailer}
}

func (s *EmailSender) Send(ctx context.Context, ch models.AlertChannel, n *models.Notification) error {
	cfg, ok := ch.Config.(models.EmailConfig)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigMismatch, ch.ID)
	}

	m, err := RenderMail(cfg, n)
	if err != nil {
		return err
	}
	return s.mailer.SendMail(ctx, m)
}

// RenderMail applies the channel templates, falling back to the defaults
func RenderMail(cfg models.EmailConfig, n *models.Notification) (Mail, error) {
	subjectTmpl := cfg.SubjectTemplate
	if subjectTmpl == "" {
		subjectTmpl = defaultSubjectTemplate
	}
	bodyTmpl := cfg.BodyTemplate
	if bodyTmpl == "" {
		bodyTmpl = defaultBodyTemplate
	}

	subject, err := renderTemplate("subject", subjectTmpl, n)
	if err != nil {
		return Mail{}, err
	}
	body, err := renderTemplate("body", bodyTmpl, n)
	if err != nil {
		return Mail{}, err
	}

	from := cfg.From
	if from == "" {
		from = defaultFrom
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = defaultSMTPPort
	}

	return Mail{
		From:     from,
		To:       append([]string(nil), cfg.Recipients...),
		Subject:  strings.TrimSpace(subject),
		Body:     body,
		Host:     cfg.SMTPHost,
		Port:     port,
		Username: cfg.Username,
		Password: cfg.Password,
	}, nil
}

// Bytes encodes the message as an RFC 5322 text/plain email
func (m Mail) Bytes(now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.From + "\r\n")
	b.WriteString("To: " + strings.Join(m.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", m.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// SMTPMailer sends mail over SMTP, upgrading with STARTTLS when offered
type SMTPMailer struct{}

func (SMTPMailer) SendMail(ctx context.Context, m Mail) error {
	if m.Host == "" {
		return fmt.Errorf("%w: smtp host", ErrNoTransport)
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(m.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range m.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(m.Bytes(time.Now())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA close: %w", err)
	}
	return c.Quit()
}
