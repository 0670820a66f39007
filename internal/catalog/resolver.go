package catalog

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultSearchLimit caps fuzzy search results.
const DefaultSearchLimit = 5

// Catalog is the raw catalog surface the Resolver degrades on top of.
// *Client implements it.
type Catalog interface {
	Lookup(ctx context.Context, isrc string) (*LookupResponse, error)
	Search(ctx context.Context, term string, limit int) ([]Track, error)
}

// Resolver turns catalog calls into match decisions. It never returns
// errors: any failure is logged and reported as "no match" or "no results"
// so one bad call cannot stop a reconciliation run. Once ctx is done those
// answers carry no information, so callers check ctx.Err() before acting
// on an empty result.
type Resolver struct {
	catalog Catalog
	limit   int
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A non-positive searchLimit uses
// DefaultSearchLimit.
func NewResolver(c Catalog, searchLimit int, logger *slog.Logger) *Resolver {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Resolver{
		catalog: c,
		limit:   searchLimit,
		logger:  logger.With(slog.String("component", "resolver")),
	}
}

// LookupByIdentifier returns the catalog record for isrc only when the
// catalog reports exactly one result. Two or more results count as no match.
func (r *Resolver) LookupByIdentifier(ctx context.Context, isrc string) (Track, bool) {
	isrc = strings.TrimSpace(isrc)
	if isrc == "" {
		return nil, false
	}

	resp, err := r.catalog.Lookup(ctx, isrc)
	if err != nil {
		r.failed(ctx, "identifier lookup failed", err, slog.String("isrc", isrc))
		return nil, false
	}
	if resp == nil || resp.ResultCount != 1 || len(resp.Results) != 1 {
		return nil, false
	}
	return resp.Results[0], true
}

// Search returns up to the configured number of candidates for an
// artist/title pair. Failures yield an empty list.
func (r *Resolver) Search(ctx context.Context, artist, title string) []Track {
	term := artist + " " + title

	results, err := r.catalog.Search(ctx, term, r.limit)
	if err != nil {
		r.failed(ctx, "catalog search failed", err, slog.String("term", term))
		return []Track{}
	}
	if results == nil {
		return []Track{}
	}
	return results
}

// failed logs a catalog error. Cancellation is expected on shutdown and is
// logged at debug level only.
func (r *Resolver) failed(ctx context.Context, msg string, err error, attr slog.Attr) {
	level := slog.LevelWarn
	if ctx.Err() != nil {
		level = slog.LevelDebug
		msg += " (cancelled)"
	}
	r.logger.LogAttrs(ctx, level, msg, attr, slog.String("error", err.Error()))
}
