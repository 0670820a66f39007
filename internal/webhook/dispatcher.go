package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sydlexius/stationsync/internal/event"
)

const (
	maxRetries     = 3
	requestTimeout = 10 * time.Second
)

// Dispatcher sends events to matching webhooks.
type Dispatcher struct {
	source     Source
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
	inflight   sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(source Source, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithHTTPClient(source, &http.Client{Timeout: requestTimeout}, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client (for testing).
func NewDispatcherWithHTTPClient(source Source, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		source:     source,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
		backoff:    time.Second,
	}
}

// HandleEvent is an event.Handler that dispatches the event to all matching webhooks.
func (d *Dispatcher) HandleEvent(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	webhooks, err := d.source.ListByEvent(ctx, string(e.Type))
	if err != nil {
		d.logger.Error("listing webhooks for event", "type", string(e.Type), "error", err)
		return
	}

	for i := range webhooks {
		w := webhooks[i]
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.deliver(w, e)
		}()
	}
}

// Wait blocks until every delivery started so far has finished or ctx ends.
// Short-lived commands call it before exiting so events are not lost.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(w Webhook, e event.Event) {
	body, contentType := formatPayload(&w, e)

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			time.Sleep(d.backoff * time.Duration(1<<uint(attempt-1)))
		}

		lastErr = d.send(w.URL, body, contentType)
		if lastErr == nil {
			d.logger.Debug("webhook delivered",
				"webhook", w.Name,
				"event", string(e.Type),
				"attempt", attempt+1,
			)
			return
		}

		d.logger.Warn("webhook delivery failed",
			"webhook", w.Name,
			"event", string(e.Type),
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	d.logger.Error("webhook delivery exhausted retries",
		"webhook", w.Name,
		"event", string(e.Type),
		"error", lastErr,
	)
}

func (d *Dispatcher) send(url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "StationSync-Webhook/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
