package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/greyledger/sitrep/internal/domain"
)

// Chain tries an ordered list of fetchers for the same logical source until
// one succeeds. It is how the social class degrades from the authenticated
// API to scraping mirrors: the API client (when credentials are configured)
// sits at the head, mirrors follow in priority order.
//
// Exhaustion is not fatal to the round; it returns an error wrapping
// domain.ErrSourceUnavailable so the caller can count the failure for backoff
// while other sources proceed.
type Chain struct {
	id     string
	label  string
	class  domain.SourceClass
	links  []Source
	logger *slog.Logger
}

// NewChain builds a fallback chain over the given fetchers, in priority
// order. All links must share the logical identity given by id/label/class.
func NewChain(id, label string, class domain.SourceClass, logger *slog.Logger, links ...Source) *Chain {
	return &Chain{id: id, label: label, class: class, links: links, logger: logger}
}

func (c *Chain) ID() string                { return c.id }
func (c *Chain) Label() string             { return c.label }
func (c *Chain) Class() domain.SourceClass { return c.class }

func (c *Chain) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	if len(c.links) == 0 {
		return nil, fmt.Errorf("%s: no fetchers configured: %w", c.id, domain.ErrSourceUnavailable)
	}

	var lastErr error
	for _, link := range c.links {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		items, err := link.Fetch(ctx)
		if err == nil {
			return items, nil
		}
		lastErr = err
		c.logger.Warn("fallback link failed, trying next",
			"source", c.id,
			"link", link.ID(),
			"error", err,
		)
	}
	return nil, fmt.Errorf("%s: all fetchers exhausted: %w", c.id, lastErr)
}
