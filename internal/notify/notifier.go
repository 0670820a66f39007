package notify

import (
	"context"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/sydlexius/stationsync/internal/event"
)

// Sender delivers a message. *Mailer implements it.
type Sender interface {
	From() string
	To() []string
	Send(ctx context.Context, msg *mail.Msg) error
}

// Report is the outcome of one missing-media check.
type Report struct {
	Tracks         int      `json:"tracks"`
	MissingArtwork []string `json:"missing_artwork"`
	MissingPreview []string  `json:"missing_preview"`
	Body           string    `json:"-"`
	Message        *mail.Msg `json:"-"`
}

// Render returns the message as it goes over the wire.
func (r *Report) Render() (string, error) {
	return renderMessage(r.Message)
}

// Complete reports whether every track had both assets.
func (r *Report) Complete() bool {
	return len(r.MissingArtwork) == 0 && len(r.MissingPreview) == 0
}

// Notifier compiles the report, mails it and publishes it on the event bus.
type Notifier struct {
	sender Sender
	events event.Publisher
	logger *slog.Logger
}

// NewNotifier creates a Notifier. A nil sender only publishes the report.
func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		events: event.Discard,
		logger: logger.With(slog.String("component", "notify")),
	}
}

// SetEventBus publishes media.missing events to p.
func (n *Notifier) SetEventBus(p event.Publisher) {
	if p == nil {
		p = event.Discard
	}
	n.events = p
}

// Build compiles the report and its message without delivering it. It fails
// only when the sender's addresses are malformed.
func (n *Notifier) Build(tracks []map[string]any) (*Report, error) {
	art, prev := CompileMissing(tracks)
	var from string
	var to []string
	if n.sender != nil {
		from, to = n.sender.From(), n.sender.To()
	}
	body := FormatBody(art, prev)
	msg, err := NewMessage(from, to, body)
	if err != nil {
		return nil, err
	}
	return &Report{
		Tracks:         len(tracks),
		MissingArtwork: art,
		MissingPreview: prev,
		Body:           body,
		Message:        msg,
	}, nil
}

// Notify builds the report, publishes it when anything is missing and
// mails it. The report is returned even when delivery fails.
func (n *Notifier) Notify(ctx context.Context, tracks []map[string]any) (*Report, error) {
	r, err := n.Build(tracks)
	if err != nil {
		return nil, err
	}
	n.logger.Info("missing media compiled",
		"tracks", r.Tracks,
		"missing_artwork", len(r.MissingArtwork),
		"missing_preview", len(r.MissingPreview))

	if !r.Complete() {
		n.events.Publish(event.Event{
			Type: event.MediaMissing,
			Data: map[string]any{
				"tracks":          r.Tracks,
				"missing_artwork": r.MissingArtwork,
				"missing_preview": r.MissingPreview,
			},
		})
	}

	if n.sender == nil {
		return r, nil
	}
	if err := n.sender.Send(ctx, r.Message); err != nil {
		return r, err
	}
	return r, nil
}
