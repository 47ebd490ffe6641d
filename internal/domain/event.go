package domain

import "time"

// SourceClass groups fetchers that share a polling schedule, a concurrency
// guard, and a dedup scope.
type SourceClass string

const (
	ClassRSS    SourceClass = "rss"
	ClassIndex  SourceClass = "index"
	ClassSocial SourceClass = "social"
)

// Classes lists every source class in scheduling order.
func Classes() []SourceClass {
	return []SourceClass{ClassRSS, ClassIndex, ClassSocial}
}

// RawItem is one unprocessed item pulled from a source. The payload shape is
// class-specific; Normalize maps it into a Draft. RawItems are ephemeral and
// discarded after normalization.
type RawItem struct {
	SourceID  string
	Label     string // human-readable source label, e.g. "BBC World"
	Class     SourceClass
	FetchedAt time.Time
	Payload   []byte
}

// RSSPayload is the flat JSON shape the RSS fetcher emits per feed entry.
type RSSPayload struct {
	Title     string `json:"title"`
	Summary   string `json:"summary,omitempty"`
	Link      string `json:"link,omitempty"`
	Published string `json:"published,omitempty"` // RFC 3339
}

// IndexPayload is the flat JSON shape the event-index fetcher emits per
// article. Field names follow the GDELT doc API.
type IndexPayload struct {
	Title         string `json:"title"`
	URL           string `json:"url,omitempty"`
	Domain        string `json:"domain,omitempty"`
	SeenDate      string `json:"seendate,omitempty"` // 20240426T151000Z
	Description   string `json:"seendescription,omitempty"`
	SocialImage   string `json:"socialimage,omitempty"`
	Themes        string `json:"themes,omitempty"` // semicolon-separated
	SourceCountry string `json:"sourcecountry,omitempty"`
}

// SocialPayload is the flat JSON shape both social fetchers (API and mirror)
// emit per post.
type SocialPayload struct {
	Account   string   `json:"account"`
	Text      string   `json:"text"`
	URL       string   `json:"url,omitempty"`
	Published string   `json:"published,omitempty"` // RFC 3339
	MediaURLs []string `json:"media_urls,omitempty"`
	Method    string   `json:"method,omitempty"` // "api" or "mirror"
}

// Location carries the geotagging outcome for an event. Unresolved locations
// keep zero coordinates and Resolved=false; such events are retained, never
// dropped.
type Location struct {
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	Name        string  `json:"name,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Resolved    bool    `json:"resolved"`
}

// Draft is a normalized event before dedup, geotagging, and classification.
type Draft struct {
	ID          string
	Fingerprint string
	Title       string
	Excerpt     string
	URL         string
	Source      string
	Class       SourceClass
	PublishedAt time.Time
	MediaURLs   []string
	RawTags     []string
	Hints       []string // location hints (hashtags, index country field)
}

// Event is a canonical, deduplicated record in the working set. Events are
// created by the pipeline and mutated only by dedup merges and expiry.
type Event struct {
	ID          string      `json:"id"`
	Fingerprint string      `json:"fingerprint"`
	Title       string      `json:"title"`
	Excerpt     string      `json:"excerpt,omitempty"`
	URL         string      `json:"url,omitempty"`
	Source      string      `json:"source"`
	Class       SourceClass `json:"source_class"`
	Category    Category    `json:"category"`
	Topics      []string    `json:"topics,omitempty"`
	Severity    int         `json:"severity"`
	Breaking    bool        `json:"is_breaking"`
	Location    Location    `json:"location"`
	MediaURLs   []string    `json:"media_urls,omitempty"`
	RawTags     []string    `json:"raw_tags,omitempty"`
	PublishedAt time.Time   `json:"published_at"`
	FirstSeen   time.Time   `json:"first_seen"`
	LastSeen    time.Time   `json:"last_seen"`
	SourceCount int         `json:"source_count"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Live reports whether the event has not yet expired at the given instant.
func (e Event) Live(now time.Time) bool {
	return e.ExpiresAt.After(now)
}
