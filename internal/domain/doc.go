// Package domain models open-source-intelligence event reports collected from
// heterogeneous upstream feeds.
//
// # Data Sources
//
// Raw items arrive from three source classes, each with its own payload shape
// and polling schedule:
//
//	rss     world-news RSS/Atom feeds (wire services, conflict monitors)
//	index   the GDELT doc API, a structured real-time article index
//	social  monitored OSINT accounts, via the authenticated API when
//	        credentials are configured, otherwise via scraping mirrors
//
// Fetchers map their upstream format into a per-class payload struct
// ([RSSPayload], [IndexPayload], [SocialPayload]) and publish it as JSON in a
// [RawItem]. Normalization parses and validates that payload; items missing a
// title or timestamp are rejected with [MalformedItemError] and dropped.
//
// # Fingerprints
//
// A fingerprint identifies "the same real-world report" across feeds and
// mirrors. It is a SHA-256 hash over the normalized lowercase title, the
// source class, and the published time rounded down to a coarse bucket
// (15 minutes by default). The bucketing absorbs timestamp jitter between
// mirrors republishing the same report. The dedup index guarantees at most
// one live event per fingerprint within the retention window.
//
// # Event IDs
//
// Event IDs are deterministic SHA-256 hashes of url|title, truncated to 16 hex
// characters. Deterministic IDs make durable-store writes idempotent
// (ON CONFLICT upserts) and safe to replay.
//
// # Classification
//
// Category is scored by weighted keyword matching over the normalized text
// (conflict, disaster, political, with "other" as the default). Topics are a
// finer multi-label taxonomy layered on top of the category. Severity (1–5)
// starts from keyword tiers, is discounted for low-reliability sources, and is
// capped by recency ceilings so stale reports cannot stay at maximum severity.
// An event is breaking when its severity reaches the configured threshold and
// it was published inside the breaking window.
//
// All thresholds, weights, bucket widths, and keyword tables are configuration
// ([NormalizeConfig], [ClassifierConfig]); the defaults here are illustrative,
// not normative.
package domain
