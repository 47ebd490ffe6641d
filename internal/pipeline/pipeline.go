// Package pipeline orchestrates one ingestion round per source class:
// fetch from every ready source, normalize, dedup by fingerprint, geotag and
// classify what survives, and store. Failures never cross source boundaries.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/observability"
	"github.com/greyledger/sitrep/internal/scheduler"
	"github.com/greyledger/sitrep/internal/source"
)

// Tagger resolves a location for a draft. Unresolvable drafts come back with
// Resolved=false, never an error.
type Tagger interface {
	Tag(ctx context.Context, draft domain.Draft) domain.Location
}

// Classifier assigns category, topics, severity, and the breaking flag.
type Classifier interface {
	Classify(event *domain.Event)
}

// EventStore is the dedup and caching tier the pipeline writes into.
type EventStore interface {
	Merge(draft domain.Draft) (domain.Event, bool)
	Put(event domain.Event) (domain.Event, bool)
}

// Pipeline implements scheduler.Runner over a fixed set of sources.
type Pipeline struct {
	sources    []source.Source
	tracker    *scheduler.Tracker
	tagger     Tagger
	classifier Classifier
	store      EventStore
	normalize  domain.NormalizeConfig
	logger     *slog.Logger
	metrics    *observability.Metrics

	fetchConcurrency int
	ready            atomic.Bool
}

// New creates a Pipeline. fetchConcurrency bounds simultaneous upstream
// fetches within one round.
func New(
	sources []source.Source,
	tracker *scheduler.Tracker,
	tagger Tagger,
	classifier Classifier,
	store EventStore,
	normalize domain.NormalizeConfig,
	fetchConcurrency int,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	if fetchConcurrency <= 0 {
		fetchConcurrency = 4
	}
	return &Pipeline{
		sources:          sources,
		tracker:          tracker,
		tagger:           tagger,
		classifier:       classifier,
		store:            store,
		normalize:        normalize,
		fetchConcurrency: fetchConcurrency,
		logger:           logger,
		metrics:          metrics,
	}
}

// CheckReadiness returns nil once at least one round has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion round has completed yet")
	}
	return nil
}

// RunClass executes one round for the class. A failing or backed-off source
// only loses its own items; the round continues with the rest.
func (p *Pipeline) RunClass(ctx context.Context, class domain.SourceClass) error {
	start := time.Now()
	items := p.fetchAll(ctx, class)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.metrics.ItemsFetched.WithLabelValues(string(class)).Add(float64(len(items)))

	for _, raw := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.processItem(ctx, raw)
	}

	p.metrics.RoundDuration.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return nil
}

// fetchAll pulls from every ready source of the class with bounded
// concurrency and records per-source outcomes in the backoff tracker.
func (p *Pipeline) fetchAll(ctx context.Context, class domain.SourceClass) []domain.RawItem {
	var (
		mu    sync.Mutex
		items []domain.RawItem
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, p.fetchConcurrency)

	for _, src := range p.sources {
		if src.Class() != class {
			continue
		}
		if !p.tracker.Ready(src.ID()) {
			p.metrics.SourcesSkipped.WithLabelValues(string(class)).Inc()
			p.logger.Debug("source in backoff, skipping", "source", src.ID())
			continue
		}

		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetched, err := src.Fetch(ctx)
			if err != nil {
				wait := p.tracker.Failure(src.ID())
				p.metrics.SourceFailures.WithLabelValues(string(class), src.ID()).Inc()
				p.logger.Warn("source fetch failed",
					"source", src.ID(), "retry_in", wait, "error", err)
				return
			}
			p.tracker.Success(src.ID())

			mu.Lock()
			items = append(items, fetched...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return items
}

// processItem takes one raw item through normalize, dedup, geotag, classify,
// store. Dedup runs before geotagging so duplicates never spend geocoder
// budget.
func (p *Pipeline) processItem(ctx context.Context, raw domain.RawItem) {
	draft, err := domain.Normalize(raw, p.normalize)
	if err != nil {
		if domain.IsMalformed(err) {
			p.metrics.ItemsMalformed.WithLabelValues(string(raw.Class)).Inc()
			p.logger.Warn("dropping malformed item", "source", raw.SourceID, "error", err)
		} else {
			p.logger.Warn("normalize failed", "source", raw.SourceID, "error", err)
		}
		return
	}

	if event, merged := p.store.Merge(draft); merged {
		p.logger.Debug("merged into existing event",
			"event_id", event.ID, "fingerprint", draft.Fingerprint, "source_count", event.SourceCount)
		return
	}

	location := p.tagger.Tag(ctx, draft)
	event := eventFromDraft(draft, location)
	p.classifier.Classify(&event)
	p.store.Put(event)
}

func eventFromDraft(draft domain.Draft, location domain.Location) domain.Event {
	return domain.Event{
		ID:          draft.ID,
		Fingerprint: draft.Fingerprint,
		Title:       draft.Title,
		Excerpt:     draft.Excerpt,
		URL:         draft.URL,
		Source:      draft.Source,
		Class:       draft.Class,
		Location:    location,
		MediaURLs:   draft.MediaURLs,
		RawTags:     draft.RawTags,
		PublishedAt: draft.PublishedAt,
		SourceCount: 1,
	}
}
