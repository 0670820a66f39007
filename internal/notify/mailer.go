package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// DefaultPort is the submission port used when none is configured.
const DefaultPort = 587

// ErrNotConfigured is returned when the mailer lacks a host, sender or
// recipients.
var ErrNotConfigured = errors.New("smtp host, sender and recipients are required")

// Options configures a Mailer.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// Mailer delivers messages over SMTP. It upgrades to TLS when the server
// offers STARTTLS and authenticates with PLAIN when a username or password
// is set.
type Mailer struct {
	opts   Options
	tls    *tls.Config
	logger *slog.Logger
}

// NewMailer creates a Mailer.
func NewMailer(opts Options, logger *slog.Logger) *Mailer {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Mailer{
		opts:   opts,
		tls:    &tls.Config{ServerName: opts.Host, MinVersion: tls.VersionTLS12},
		logger: logger.With(slog.String("component", "mailer")),
	}
}

// From returns the configured sender.
func (m *Mailer) From() string { return m.opts.From }

// To returns the configured recipients.
func (m *Mailer) To() []string { return m.opts.To }

// Send delivers msg. The envelope comes from the message's own From and To
// headers.
func (m *Mailer) Send(ctx context.Context, msg *mail.Msg) error {
	if m.opts.Host == "" || m.opts.From == "" || len(m.opts.To) == 0 {
		return ErrNotConfigured
	}

	opts := []mail.Option{
		mail.WithPort(m.opts.Port),
		mail.WithTimeout(m.opts.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(m.tls),
	}
	if m.opts.Username != "" || m.opts.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.opts.Username),
			mail.WithPassword(m.opts.Password),
		)
	}
	client, err := mail.NewClient(m.opts.Host, opts...)
	if err != nil {
		return fmt.Errorf("configuring smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending via %s:%d: %w", m.opts.Host, m.opts.Port, err)
	}
	m.logger.Info("report mailed", "host", m.opts.Host, "port", m.opts.Port, "recipients", len(m.opts.To))
	return nil
}
