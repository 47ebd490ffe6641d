package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/greyledger/sitrep/internal/domain"
)

// mirrorTimeLayout matches the timestamp tooltip mirrors render,
// e.g. "Apr 26, 2024 · 9:30 PM UTC".
const mirrorTimeLayout = "Jan 2, 2006 · 3:04 PM MST"

// MirrorSource scrapes recent posts for one account from an unauthenticated
// Nitter-style mirror. Mirrors are unreliable by nature; any HTTP or parse
// failure surfaces as domain.ErrSourceUnavailable so the fallback chain can
// try the next instance.
type MirrorSource struct {
	handle     string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewMirrorSource creates a scraper for one account on one mirror instance.
func NewMirrorSource(handle, baseURL, userAgent string, timeout time.Duration) *MirrorSource {
	return &MirrorSource{
		handle:     handle,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *MirrorSource) ID() string                { return "social:mirror:" + s.handle }
func (s *MirrorSource) Label() string             { return "@" + s.handle }
func (s *MirrorSource) Class() domain.SourceClass { return domain.ClassSocial }

func (s *MirrorSource) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+s.handle, nil)
	if err != nil {
		return nil, fmt.Errorf("build mirror request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror %s: %w: %w", s.baseURL, domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror %s status %d: %w", s.baseURL, resp.StatusCode, domain.ErrSourceUnavailable)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse mirror page: %w: %w", domain.ErrSourceUnavailable, err)
	}

	now := time.Now().UTC()
	var items []domain.RawItem
	doc.Find(".timeline-item").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(items) >= maxPostsPerAccount {
			return false
		}

		text := strings.TrimSpace(sel.Find(".tweet-content").Text())
		if text == "" {
			return true
		}

		published := now
		if title, ok := sel.Find(".tweet-date a").Attr("title"); ok {
			if t, err := time.Parse(mirrorTimeLayout, title); err == nil {
				published = t.UTC()
			}
		}

		payload := domain.SocialPayload{
			Account:   s.handle,
			Text:      text,
			URL:       "https://x.com/" + s.handle,
			Published: published.Format(time.RFC3339),
			MediaURLs: s.mediaURLs(sel),
			Method:    "mirror",
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return true
		}
		items = append(items, domain.RawItem{
			SourceID:  s.ID(),
			Label:     s.Label(),
			Class:     domain.ClassSocial,
			FetchedAt: now,
			Payload:   data,
		})
		return true
	})

	return items, nil
}

// mediaURLs collects image and video attachment links, resolving
// mirror-relative paths against the instance base URL.
func (s *MirrorSource) mediaURLs(sel *goquery.Selection) []string {
	var urls []string
	collect := func(_ int, m *goquery.Selection) {
		src, ok := m.Attr("src")
		if !ok || src == "" {
			return
		}
		if strings.HasPrefix(src, "/") {
			src = s.baseURL + src
		}
		urls = append(urls, src)
	}
	sel.Find(".attachment img").Each(collect)
	sel.Find(".gif source, video source").Each(collect)
	return urls
}
