package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultLookupURL is the iTunes exact-match lookup endpoint.
	DefaultLookupURL = "https://itunes.apple.com/lookup"
	// DefaultSearchURL is the iTunes free-text search endpoint.
	DefaultSearchURL = "https://itunes.apple.com/search"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 2 << 20
	userAgent      = "stationsync/1.0"
)

// Options configures a catalog Client.
type Options struct {
	LookupURL string
	SearchURL string
	Country   string
	Timeout   time.Duration
	// RequestsPerSecond caps outbound calls across all workers. Zero or
	// negative disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// LookupResponse is the body of an identifier lookup.
type LookupResponse struct {
	ResultCount int     `json:"resultCount"`
	Results     []Track `json:"results"`
}

type searchResponse struct {
	ResultCount int     `json:"resultCount"`
	Results     []Track `json:"results"`
}

// Client talks to the iTunes lookup and search endpoints. It is safe for
// concurrent use; every request waits on a shared rate limiter.
type Client struct {
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	lookupURL string
	searchURL string
	country   string
}

// New creates a catalog client. Empty URLs fall back to the public iTunes
// endpoints.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.LookupURL == "" {
		opts.LookupURL = DefaultLookupURL
	}
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger.With(slog.String("component", "catalog")),
		lookupURL: strings.TrimRight(opts.LookupURL, "/"),
		searchURL: strings.TrimRight(opts.SearchURL, "/"),
		country:   opts.Country,
	}
}

// Lookup queries the catalog for an exact identifier match.
func (c *Client) Lookup(ctx context.Context, isrc string) (*LookupResponse, error) {
	params := url.Values{"isrc": {isrc}}
	if c.country != "" {
		params.Set("country", c.country)
	}

	body, err := c.get(ctx, "lookup", c.lookupURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp LookupResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing lookup response: %w", err)
	}

	c.logger.Debug("identifier lookup completed",
		slog.String("isrc", isrc),
		slog.Int("result_count", resp.ResultCount))

	return &resp, nil
}

// Search runs a free-text music search capped at limit results.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]Track, error) {
	params := url.Values{
		"term":  {term},
		"media": {"music"},
		"limit": {strconv.Itoa(limit)},
	}
	if c.country != "" {
		params.Set("country", c.country)
	}

	body, err := c.get(ctx, "search", c.searchURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	c.logger.Debug("search completed",
		slog.String("term", term),
		slog.Int("results", len(resp.Results)))

	return resp.Results, nil
}

// get performs a rate-limited GET and returns the response body.
func (c *Client) get(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ErrUnavailable{Endpoint: endpoint, Cause: fmt.Errorf("rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req) //nolint:gosec // URL built from configured endpoint
	if err != nil {
		return nil, &ErrUnavailable{Endpoint: endpoint, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		e := &ErrUnavailable{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
			e.Cause = fmt.Errorf("rate limited by server")
			if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, e
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ErrUnavailable{Endpoint: endpoint, Cause: fmt.Errorf("reading body: %w", err)}
	}
	return body, nil
}
