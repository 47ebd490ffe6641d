package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/greyledger/sitrep/internal/adapter/httpadapter"
	kafkaadapter "github.com/greyledger/sitrep/internal/adapter/kafka"
	"github.com/greyledger/sitrep/internal/adapter/nominatim"
	"github.com/greyledger/sitrep/internal/adapter/postgres"
	"github.com/greyledger/sitrep/internal/config"
	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/geotag"
	"github.com/greyledger/sitrep/internal/observability"
	"github.com/greyledger/sitrep/internal/pipeline"
	"github.com/greyledger/sitrep/internal/scheduler"
	"github.com/greyledger/sitrep/internal/source"
	"github.com/greyledger/sitrep/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Geocoder (feature-flagged via GEOCODE_ENABLED).
	var geocoder domain.Geocoder
	if cfg.GeocodeEnabled {
		client := nominatim.NewClient(cfg.GeocodeUserAgent, cfg.GeocodeTimeout, logger)
		geocoder = nominatim.NewCachedGeocoder(client, cfg.GeocodeRate, metrics)
		logger.Info("geocoding enabled", "rate_per_sec", cfg.GeocodeRate, "timeout", cfg.GeocodeTimeout)
	} else {
		logger.Info("geocoding disabled, events stay unresolved")
	}
	tagger := geotag.NewTagger(geotag.NewNERExtractor(), geocoder, logger, metrics)

	// Durable tier, both sinks optional.
	var persisters []store.Persister
	var pgPersister *postgres.Persister
	if cfg.PostgresDSN != "" {
		pgPersister, err = postgres.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if err := pgPersister.EnsureSchema(ctx); err != nil {
			logger.Error("postgres schema setup failed", "error", err)
			os.Exit(1)
		}
		persisters = append(persisters, pgPersister)
		logger.Info("postgres persistence enabled")
	}
	var firehose *kafkaadapter.Firehose
	if len(cfg.KafkaBrokers) > 0 {
		firehose = kafkaadapter.NewFirehose(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		persisters = append(persisters, firehose)
		logger.Info("kafka firehose enabled", "topic", cfg.KafkaTopic)
	}
	if len(persisters) == 0 {
		logger.Info("no durable tier configured, running cache-only")
	}

	clock := clockwork.NewRealClock()

	eventStore := store.NewStore(store.Config{
		TTL:             cfg.CacheTTL,
		CleanupInterval: cfg.CacheCleanupInterval,
		QueueSize:       cfg.PersistQueueSize,
		Clock:           clock,
	}, persisters, logger, metrics)

	normalizeCfg := domain.DefaultNormalizeConfig()
	normalizeCfg.FingerprintBucket = cfg.FingerprintBucket

	classifierCfg := domain.DefaultClassifierConfig()
	classifierCfg.BreakingThreshold = cfg.BreakingThreshold
	classifierCfg.BreakingWindow = cfg.BreakingWindow
	classifier := domain.NewClassifier(classifierCfg)

	tracker := scheduler.NewTracker(cfg.BackoffBase, cfg.BackoffCeiling, clock)

	p := pipeline.New(buildSources(cfg, logger), tracker, tagger, classifier, eventStore,
		normalizeCfg, cfg.FetchConcurrency, logger, metrics)

	sched := scheduler.New(p, scheduler.Config{
		Intervals: map[domain.SourceClass]time.Duration{
			domain.ClassRSS:    cfg.RSSInterval,
			domain.ClassIndex:  cfg.IndexInterval,
			domain.ClassSocial: cfg.SocialInterval,
		},
		JitterFrac: cfg.JitterFrac,
		InitialRun: cfg.InitialRun,
	}, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, sched, eventStore, cfg.CORSOrigins, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched.Run(ctx)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	eventStore.Close()
	if pgPersister != nil {
		if err := pgPersister.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}
	if firehose != nil {
		if err := firehose.Close(); err != nil {
			logger.Error("kafka firehose close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// buildSources assembles the fetchers: one per RSS feed, the event index,
// and per social account an API-then-mirrors fallback chain (mirrors only
// when no bearer token is configured).
func buildSources(cfg *config.Config, logger *slog.Logger) []source.Source {
	var sources []source.Source

	for _, feed := range cfg.Feeds {
		sources = append(sources, source.NewRSSSource(
			source.RSSFeed{URL: feed.URL, Label: feed.Label},
			cfg.FetchUserAgent, cfg.FetchTimeout))
	}

	if cfg.GDELTEnabled {
		sources = append(sources, source.NewIndexSource("", cfg.FetchTimeout))
	}

	for _, handle := range cfg.SocialAccounts {
		var links []source.Source
		if cfg.SocialBearerToken != "" {
			links = append(links, source.NewAPISource(handle, cfg.SocialBearerToken, cfg.FetchTimeout))
		}
		for _, base := range cfg.MirrorBaseURLs {
			links = append(links, source.NewMirrorSource(handle, base, cfg.FetchUserAgent, cfg.FetchTimeout))
		}
		if len(links) == 0 {
			continue
		}
		sources = append(sources, source.NewChain(
			"social:"+handle, "@"+handle, domain.ClassSocial, logger, links...))
	}

	return sources
}
