package channels

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/platform/config"
)

// SMTPSender delivers nurture messages over the tenant's SMTP server via
// go-mail. Message bodies are plain text; the subject is derived from the
// first line.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	if !cfg.GetEmailEnabled() {
		return nil
	}
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) Channel() domain.Channel { return domain.ChannelEmail }

func (s *SMTPSender) Send(ctx context.Context, lead domain.Lead, message string) error {
	if lead.Email == nil || *lead.Email == "" {
		return fmt.Errorf("lead %s has no email address", lead.ID)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(*lead.Email); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subjectFrom(message))
	msg.SetBodyString(gomail.TypeTextPlain, message)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// subjectFrom takes the first sentence of the body, capped to a sane
// subject length.
func subjectFrom(message string) string {
	line := message
	if idx := strings.IndexAny(message, "\n.!?"); idx > 0 {
		line = message[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > 78 {
		line = line[:75] + "..."
	}
	if line == "" {
		return "Following up"
	}
	return line
}
