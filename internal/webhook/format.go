package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sydlexius/stationsync/internal/event"
)

// formatPayload returns the request body and content-type for a webhook delivery.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	switch w.Type {
	case TypeDiscord:
		return formatDiscord(e)
	case TypeSlack:
		return formatSlack(e)
	case TypeGotify:
		return formatGotify(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"event":     string(e.Type),
		"timestamp": e.Timestamp,
		"data":      e.Data,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatDiscord(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title(e),
				"description": formatDescription(e),
				"color":       colorFor(e.Type),
				"timestamp":   e.Timestamp.Format("2006-01-02T15:04:05Z"),
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatSlack(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"text": fmt.Sprintf("*%s*\n%s", title(e), formatDescription(e)),
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatGotify(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"title":   title(e),
		"message": formatDescription(e),
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func title(e event.Event) string {
	return fmt.Sprintf("StationSync: %s", e.Type)
}

func colorFor(t event.Type) int {
	switch t {
	case event.ReviewNeeded:
		return 15105570 // orange
	case event.MediaMissing:
		return 15158332 // red
	default:
		return 3447003 // blue
	}
}

// formatDescription prefers an explicit message, then a summary for the
// known event shapes, then the raw data.
func formatDescription(e event.Event) string {
	if e.Data == nil {
		return string(e.Type)
	}
	if msg, ok := e.Data["message"].(string); ok {
		return msg
	}
	switch e.Type {
	case event.ReconcileCompleted:
		return fmt.Sprintf("%v records: %v auto, %v queued, %v skipped, %v failed",
			e.Data["total"], e.Data["auto"], e.Data["queued"], e.Data["skipped"], e.Data["failed"])
	case event.ReviewNeeded:
		return fmt.Sprintf("%v needs review (%v candidates)", e.Data["key"], e.Data["candidates"])
	case event.ReviewDecided:
		return fmt.Sprintf("%v %v by %v", e.Data["key"], e.Data["status"], e.Data["reviewer"])
	case event.MediaMissing:
		var parts []string
		if titles, ok := e.Data["missing_artwork"].([]string); ok && len(titles) > 0 {
			parts = append(parts, "Missing artwork: "+strings.Join(titles, ", "))
		}
		if titles, ok := e.Data["missing_preview"].([]string); ok && len(titles) > 0 {
			parts = append(parts, "Missing preview: "+strings.Join(titles, ", "))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	b, _ := json.Marshal(e.Data)
	return string(b)
}
