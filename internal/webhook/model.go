package webhook

import (
	"context"
	"fmt"
	"net/url"
	"slices"
)

// Webhook represents a configured webhook endpoint.
type Webhook struct {
	Name    string   `yaml:"name" json:"name"`
	URL     string   `yaml:"url" json:"url"`
	Type    string   `yaml:"type" json:"type"`
	Events  []string `yaml:"events" json:"events"`
	Enabled bool     `yaml:"enabled" json:"enabled"`
}

// Webhook types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// Validate checks the fields a delivery needs.
func (w Webhook) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	if w.URL == "" {
		return fmt.Errorf("webhook %q: url is required", w.Name)
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook %q: url must be http or https", w.Name)
	}
	switch w.Type {
	case "", TypeGeneric, TypeDiscord, TypeSlack, TypeGotify:
	default:
		return fmt.Errorf("webhook %q: unknown type %q", w.Name, w.Type)
	}
	return nil
}

// Source lists the webhooks subscribed to an event type.
type Source interface {
	ListByEvent(ctx context.Context, eventType string) ([]Webhook, error)
}

// Static is a Source over a fixed list, as loaded from the config file.
type Static []Webhook

// ListByEvent returns the enabled webhooks whose event list contains
// eventType. An empty event list subscribes to everything.
func (s Static) ListByEvent(_ context.Context, eventType string) ([]Webhook, error) {
	var out []Webhook
	for _, w := range s {
		if !w.Enabled {
			continue
		}
		if len(w.Events) == 0 || slices.Contains(w.Events, eventType) {
			if w.Type == "" {
				w.Type = TypeGeneric
			}
			out = append(out, w)
		}
	}
	return out, nil
}
