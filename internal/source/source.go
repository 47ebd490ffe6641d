// Package source contains the fetcher variants that pull raw items from
// upstream feeds: RSS, the structured event index, the authenticated social
// API, and scraping mirrors, plus the fallback chain that orders them.
package source

import (
	"context"

	"github.com/greyledger/sitrep/internal/domain"
)

// Source pulls raw items from one upstream feed. A failed fetch returns an
// error wrapping domain.ErrSourceUnavailable; the caller isolates it to this
// source and applies backoff. Implementations must be safe for concurrent use.
type Source interface {
	ID() string
	Label() string
	Class() domain.SourceClass
	Fetch(ctx context.Context) ([]domain.RawItem, error)
}
