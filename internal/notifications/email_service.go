package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"tableside/pkg/logger"
)

// EmailService delivers a notification to its recipient
type EmailService interface {
	Send(ctx context.Context, notification *Notification) error
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	UseTLS    bool
	Timeout   time.Duration
}

func validateSMTPConfig(config *SMTPConfig) error {
	if config == nil {
		return fmt.Errorf("SMTP config is nil")
	}
	if config.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("SMTP port must be between 1 and 65535")
	}
	if config.FromEmail == "" {
		return fmt.Errorf("from email is required")
	}
	return nil
}

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "waitlist_joined"}}<p>Hi {{.name}},</p>
<p>You're on the waitlist for a party of {{index .data "party_size"}} on {{index .data "date"}} at {{index .data "time"}}.</p>
<p>Estimated wait: {{index .data "estimated_wait_time"}} minutes.</p>{{end}}
{{define "waitlist_table_ready"}}<p>Hi {{.name}},</p>
<p>Your table for {{index .data "party_size"}} is ready. Please head to the host stand.</p>{{end}}
{{define "waitlist_seated"}}<p>Hi {{.name}},</p>
<p>Your reservation #{{index .data "reservation_id"}} for {{index .data "date"}} at {{index .data "time"}} is confirmed.</p>{{end}}
{{define "subscription_activated"}}<p>Hi {{.name}},</p>
<p>Your {{index .data "plan_name"}} subscription is active until {{index .data "current_period_end"}}.</p>{{end}}
{{define "subscription_payment_failed"}}<p>Hi {{.name}},</p>
<p>We couldn't collect your latest payment. Update your billing details to keep your {{index .data "plan_name"}} plan.</p>{{end}}
{{define "subscription_canceled"}}<p>Hi {{.name}},</p>
<p>Your {{index .data "plan_name"}} subscription has ended.</p>{{end}}
`))

// RenderBody renders the HTML body for a notification, falling back to a generic message
func RenderBody(notification *Notification) (string, error) {
	data := map[string]interface{}{
		"name": notification.RecipientName,
		"data": notification.TemplateData,
	}

	var buf bytes.Buffer
	if emailTemplates.Lookup(string(notification.Type)) == nil {
		fmt.Fprintf(&buf, "<p>Hi %s,</p><p>%s</p>", template.HTMLEscapeString(notification.RecipientName),
			template.HTMLEscapeString(notification.Subject))
		return buf.String(), nil
	}
	if err := emailTemplates.ExecuteTemplate(&buf, string(notification.Type), data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", notification.Type, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

type SMTPEmailService struct {
	config *SMTPConfig
	log    *logger.Logger
}

func NewSMTPEmailService(config *SMTPConfig) (*SMTPEmailService, error) {
	if err := validateSMTPConfig(config); err != nil {
		return nil, fmt.Errorf("invalid SMTP configuration: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &SMTPEmailService{
		config: config,
		log:    logger.GetDefault().WithComponent("notifications.smtp"),
	}, nil
}

func (s *SMTPEmailService) Send(ctx context.Context, notification *Notification) error {
	htmlBody, err := RenderBody(notification)
	if err != nil {
		return err
	}

	message := s.buildMessage(notification.RecipientEmail, notification.Subject, htmlBody)
	if err := s.sendWithSTARTTLS(ctx, notification.RecipientEmail, message); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "email sent", "type", notification.Type, "notification_id", notification.ID)
	return nil
}

func (s *SMTPEmailService) sendWithSTARTTLS(ctx context.Context, to string, message []byte) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if s.config.UseTLS {
		if err = client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err = client.Mail(s.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return client.Quit()
}

func (s *SMTPEmailService) buildMessage(to, subject, htmlBody string) []byte {
	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail),
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Date":         time.Now().Format(time.RFC1123Z),
		"Content-Type": "text/html; charset=UTF-8",
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogEmailService renders and logs instead of sending; used when SMTP is not configured
type LogEmailService struct {
	log *logger.Logger
}

func NewLogEmailService() *LogEmailService {
	return &LogEmailService{log: logger.GetDefault().WithComponent("notifications.email")}
}

func (s *LogEmailService) Send(ctx context.Context, notification *Notification) error {
	body, err := RenderBody(notification)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email (log only)",
		"type", notification.Type,
		"recipient", notification.RecipientKey,
		"subject", notification.Subject,
		"body_bytes", len(body))
	return nil
}
