package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	hashtagRe    = regexp.MustCompile(`#(\w+)`)
)

// NormalizeConfig controls fingerprinting and excerpt shaping.
type NormalizeConfig struct {
	// FingerprintBucket is the coarse window published times are rounded down
	// to before hashing, so mirrors reporting the same event minutes apart
	// still collide.
	FingerprintBucket time.Duration

	// ExcerptLimit caps the stored body excerpt, in bytes.
	ExcerptLimit int
}

// DefaultNormalizeConfig returns the illustrative defaults: 15-minute buckets
// and 500-byte excerpts.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{
		FingerprintBucket: 15 * time.Minute,
		ExcerptLimit:      500,
	}
}

// Normalize maps a RawItem into a Draft using the class-specific field
// mapping. It returns a MalformedItemError when the title or the published
// timestamp cannot be recovered.
func Normalize(raw RawItem, cfg NormalizeConfig) (Draft, error) {
	switch raw.Class {
	case ClassRSS:
		return normalizeRSS(raw, cfg)
	case ClassIndex:
		return normalizeIndex(raw, cfg)
	case ClassSocial:
		return normalizeSocial(raw, cfg)
	default:
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: fmt.Sprintf("unknown source class %q", raw.Class)}
	}
}

func normalizeRSS(raw RawItem, cfg NormalizeConfig) (Draft, error) {
	var p RSSPayload
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "undecodable payload"}
	}
	if strings.TrimSpace(p.Title) == "" {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "missing title"}
	}

	published, err := time.Parse(time.RFC3339, p.Published)
	if err != nil {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "missing or unparseable published time"}
	}

	title := strings.TrimSpace(p.Title)
	return Draft{
		ID:          EventID(p.Link, title),
		Fingerprint: Fingerprint(title, raw.Class, published, cfg.FingerprintBucket),
		Title:       title,
		Excerpt:     cleanExcerpt(p.Summary, cfg.ExcerptLimit),
		URL:         p.Link,
		Source:      raw.Label,
		Class:       raw.Class,
		PublishedAt: published.UTC(),
	}, nil
}

func normalizeIndex(raw RawItem, cfg NormalizeConfig) (Draft, error) {
	var p IndexPayload
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "undecodable payload"}
	}
	if strings.TrimSpace(p.Title) == "" {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "missing title"}
	}

	// The index reports times as 20240426T151000Z; fall back to fetch time
	// when the field is absent rather than dropping the article.
	published := raw.FetchedAt
	if p.SeenDate != "" {
		t, err := time.Parse("20060102T150405Z", p.SeenDate)
		if err != nil {
			return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "unparseable seendate"}
		}
		published = t
	}
	if published.IsZero() {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "missing published time"}
	}

	source := p.Domain
	if source == "" {
		source = raw.Label
	}

	var media []string
	if p.SocialImage != "" {
		media = []string{p.SocialImage}
	}
	var tags []string
	if p.Themes != "" {
		tags = strings.Split(p.Themes, ";")
	}
	var hints []string
	if p.SourceCountry != "" {
		hints = []string{p.SourceCountry}
	}

	title := strings.TrimSpace(p.Title)
	return Draft{
		ID:          EventID(p.URL, title),
		Fingerprint: Fingerprint(title, raw.Class, published, cfg.FingerprintBucket),
		Title:       title,
		Excerpt:     cleanExcerpt(p.Description, cfg.ExcerptLimit),
		URL:         p.URL,
		Source:      source,
		Class:       raw.Class,
		PublishedAt: published.UTC(),
		MediaURLs:   media,
		RawTags:     tags,
		Hints:       hints,
	}, nil
}

func normalizeSocial(raw RawItem, cfg NormalizeConfig) (Draft, error) {
	var p SocialPayload
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "undecodable payload"}
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "missing text"}
	}

	published, err := time.Parse(time.RFC3339, p.Published)
	if err != nil {
		return Draft{}, &MalformedItemError{Source: raw.SourceID, Reason: "missing or unparseable published time"}
	}

	// Posts have no headline; the leading text stands in for the title so
	// mirrors reposting the same text fingerprint identically.
	title := truncate(text, 120)

	return Draft{
		ID:          EventID(p.Account, text),
		Fingerprint: Fingerprint(title, raw.Class, published, cfg.FingerprintBucket),
		Title:       title,
		Excerpt:     cleanExcerpt(text, cfg.ExcerptLimit),
		URL:         p.URL,
		Source:      raw.Label,
		Class:       raw.Class,
		PublishedAt: published.UTC(),
		MediaURLs:   p.MediaURLs,
		Hints:       hashtags(text),
	}, nil
}

// Fingerprint hashes (normalized lowercase title, source class, bucketed
// published time) into a stable identifier for "the same real-world report".
func Fingerprint(title string, class SourceClass, published time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = 15 * time.Minute
	}
	normalized := normalizeTitle(title)
	bucketed := published.UTC().Truncate(bucket)
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", normalized, class, bucketed.Unix()))
	return hex.EncodeToString(sum[:8])
}

// EventID produces a deterministic short ID from the item's URL and title,
// enabling idempotent durable-store upserts and replay safety.
func EventID(url, title string) string {
	sum := sha256.Sum256([]byte(url + title))
	return hex.EncodeToString(sum[:8])
}

// normalizeTitle lowercases and collapses whitespace so cosmetic differences
// between mirrors do not defeat deduplication.
func normalizeTitle(title string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), " ")
}

// cleanExcerpt strips markup and clamps the excerpt length.
func cleanExcerpt(s string, limit int) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	return truncate(s, limit)
}

// truncate clamps s to at most limit bytes, backing off to a rune boundary so
// the cut never leaves an invalid UTF-8 tail.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// hashtags extracts #tag tokens, preserving order of first appearance.
func hashtags(text string) []string {
	matches := hashtagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}
