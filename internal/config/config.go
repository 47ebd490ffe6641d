// Package config loads service settings from environment variables with
// defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Feed names one RSS feed: a human-readable label and its URL.
type Feed struct {
	Label string
	URL   string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Sources.
	Feeds             []Feed
	GDELTEnabled      bool
	SocialBearerToken string
	SocialAccounts    []string
	MirrorBaseURLs    []string
	FetchUserAgent    string
	FetchTimeout      time.Duration

	// Scheduling.
	RSSInterval      time.Duration
	IndexInterval    time.Duration
	SocialInterval   time.Duration
	JitterFrac       float64
	InitialRun       bool
	BackoffBase      time.Duration
	BackoffCeiling   time.Duration
	FetchConcurrency int

	// Geotagging.
	GeocodeEnabled   bool
	GeocodeRate      float64 // upstream requests per second
	GeocodeTimeout   time.Duration
	GeocodeUserAgent string

	// Working set and classification.
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
	FingerprintBucket    time.Duration
	BreakingThreshold    int
	BreakingWindow       time.Duration

	// Durable tier (both optional).
	PostgresDSN      string
	KafkaBrokers     []string
	KafkaTopic       string
	PersistQueueSize int
}

const defaultFeeds = "BBC World=https://feeds.bbci.co.uk/news/world/rss.xml," +
	"Al Jazeera=https://www.aljazeera.com/xml/rss/all.xml," +
	"France 24=https://www.france24.com/en/rss"

// defaultMirrorUserAgent is a browser-like agent; mirror instances refuse
// obvious bot agents.
const defaultMirrorUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),
		CORSOrigins: splitCSV(os.Getenv("CORS_ORIGINS")),

		GDELTEnabled:      envOrDefault("GDELT_ENABLED", "true") == "true",
		SocialBearerToken: os.Getenv("SOCIAL_BEARER_TOKEN"),
		SocialAccounts:    splitCSV(os.Getenv("SOCIAL_ACCOUNTS")),
		MirrorBaseURLs:    splitCSV(envOrDefault("MIRROR_BASE_URLS", "https://nitter.net")),
		FetchUserAgent:    envOrDefault("FETCH_USER_AGENT", defaultMirrorUserAgent),

		InitialRun: envOrDefault("INITIAL_RUN", "true") == "true",

		GeocodeEnabled:   envOrDefault("GEOCODE_ENABLED", "true") == "true",
		GeocodeUserAgent: envOrDefault("GEOCODE_USER_AGENT", "sitrep/1.0 (+https://github.com/greyledger/sitrep)"),

		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "sitrep-events"),
	}

	feeds, err := parseFeeds(envOrDefault("RSS_FEEDS", defaultFeeds))
	if err != nil {
		return nil, err
	}
	cfg.Feeds = feeds

	durations := []struct {
		dst  *time.Duration
		name string
		def  string
	}{
		{&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", "10s"},
		{&cfg.FetchTimeout, "FETCH_TIMEOUT", "15s"},
		{&cfg.RSSInterval, "RSS_INTERVAL", "5m"},
		{&cfg.IndexInterval, "INDEX_INTERVAL", "15m"},
		{&cfg.SocialInterval, "SOCIAL_INTERVAL", "2m"},
		{&cfg.BackoffBase, "BACKOFF_BASE", "30s"},
		{&cfg.BackoffCeiling, "BACKOFF_CEILING", "30m"},
		{&cfg.GeocodeTimeout, "GEOCODE_TIMEOUT", "5s"},
		{&cfg.CacheTTL, "CACHE_TTL", "12h"},
		{&cfg.CacheCleanupInterval, "CACHE_CLEANUP_INTERVAL", "10m"},
		{&cfg.FingerprintBucket, "FINGERPRINT_BUCKET", "15m"},
		{&cfg.BreakingWindow, "BREAKING_WINDOW", "30m"},
	}
	for _, d := range durations {
		v, err := parsePositiveDuration(d.name, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if cfg.JitterFrac, err = parseFloat("JITTER_FRAC", "0.15"); err != nil {
		return nil, err
	}
	if cfg.JitterFrac < 0 || cfg.JitterFrac >= 1 {
		return nil, errors.New("JITTER_FRAC must be in [0, 1)")
	}
	if cfg.GeocodeRate, err = parseFloat("GEOCODE_RATE", "1"); err != nil {
		return nil, err
	}
	if cfg.GeocodeRate <= 0 {
		return nil, errors.New("GEOCODE_RATE must be positive")
	}

	if cfg.FetchConcurrency, err = parsePositiveInt("FETCH_CONCURRENCY", "4"); err != nil {
		return nil, err
	}
	if cfg.BreakingThreshold, err = parsePositiveInt("BREAKING_THRESHOLD", "4"); err != nil {
		return nil, err
	}
	if cfg.PersistQueueSize, err = parsePositiveInt("PERSIST_QUEUE_SIZE", "256"); err != nil {
		return nil, err
	}

	if cfg.BackoffCeiling < cfg.BackoffBase {
		return nil, errors.New("BACKOFF_CEILING must be at least BACKOFF_BASE")
	}
	if len(cfg.Feeds) == 0 && !cfg.GDELTEnabled && len(cfg.SocialAccounts) == 0 {
		return nil, errors.New("no sources configured")
	}
	if len(cfg.SocialAccounts) > 0 && cfg.SocialBearerToken == "" && len(cfg.MirrorBaseURLs) == 0 {
		return nil, errors.New("SOCIAL_ACCOUNTS set but neither SOCIAL_BEARER_TOKEN nor MIRROR_BASE_URLS is configured")
	}

	return cfg, nil
}

// parseFeeds parses a comma-separated list of "Label=URL" entries.
func parseFeeds(raw string) ([]Feed, error) {
	entries := splitCSV(raw)
	feeds := make([]Feed, 0, len(entries))
	for _, entry := range entries {
		label, url, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(label) == "" || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("RSS_FEEDS entry %q is not Label=URL", entry)
		}
		feeds = append(feeds, Feed{Label: strings.TrimSpace(label), URL: strings.TrimSpace(url)})
	}
	return feeds, nil
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	v, err := time.ParseDuration(envOrDefault(name, def))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func parseFloat(name, def string) (float64, error) {
	v, err := strconv.ParseFloat(envOrDefault(name, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func parsePositiveInt(name, def string) (int, error) {
	v, err := strconv.Atoi(envOrDefault(name, def))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}
