package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/greyledger/sitrep/internal/domain"
)

// maxFeedItems caps how many entries are taken per feed per round; wire
// services publish far faster than the working set needs.
const maxFeedItems = 20

// RSSFeed is one configured feed: its URL and a human-readable label.
type RSSFeed struct {
	URL   string
	Label string
}

// RSSSource fetches and parses a single RSS/Atom feed.
type RSSSource struct {
	feed   RSSFeed
	parser *gofeed.Parser
}

// NewRSSSource creates a fetcher for one feed. The timeout bounds the whole
// fetch+parse call.
func NewRSSSource(feed RSSFeed, userAgent string, timeout time.Duration) *RSSSource {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &RSSSource{feed: feed, parser: parser}
}

func (s *RSSSource) ID() string                { return "rss:" + s.feed.Label }
func (s *RSSSource) Label() string             { return s.feed.Label }
func (s *RSSSource) Class() domain.SourceClass { return domain.ClassRSS }

// Fetch pulls the feed and maps entries into raw items. Entries without a
// parseable published time carry an empty timestamp and are rejected later by
// normalization, not here.
func (s *RSSSource) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	feed, err := s.parser.ParseURLWithContext(s.feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w: %w", s.feed.Label, domain.ErrSourceUnavailable, err)
	}

	now := time.Now().UTC()
	items := make([]domain.RawItem, 0, min(len(feed.Items), maxFeedItems))
	for i, entry := range feed.Items {
		if i >= maxFeedItems {
			break
		}

		payload := domain.RSSPayload{
			Title:   entry.Title,
			Summary: firstNonEmpty(entry.Description, entry.Content),
			Link:    entry.Link,
		}
		if entry.PublishedParsed != nil {
			payload.Published = entry.PublishedParsed.UTC().Format(time.RFC3339)
		}

		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		items = append(items, domain.RawItem{
			SourceID:  s.ID(),
			Label:     s.feed.Label,
			Class:     domain.ClassRSS,
			FetchedAt: now,
			Payload:   data,
		})
	}
	return items, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
