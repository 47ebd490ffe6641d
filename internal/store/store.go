// Package store holds the deduplicated working set of events. It is two
// tiers: a TTL cache that serves every read, and optional durable persisters
// written asynchronously best-effort. Reads never return expired events.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	gocache "github.com/patrickmn/go-cache"

	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/observability"
)

// persistTimeout bounds a single durable write.
const persistTimeout = 5 * time.Second

// Persister is a durable sink for events. Persist failures are logged and
// counted; they never propagate to the cache write path.
type Persister interface {
	Persist(ctx context.Context, event domain.Event) error
}

// Config holds the store's tuning knobs.
type Config struct {
	// TTL is how long an event stays live after its last sighting.
	TTL time.Duration
	// CleanupInterval is how often the cache janitor sweeps expired entries.
	CleanupInterval time.Duration
	// QueueSize bounds the async persist queue; writes beyond it are dropped.
	QueueSize int
	// Clock stamps FirstSeen/LastSeen/ExpiresAt; nil means the real clock.
	// The cache janitor's own sweep always runs on wall time.
	Clock clockwork.Clock
}

// Store is the working set. The fingerprint index and the cache are kept
// consistent under one mutex; cache eviction removes the matching index
// entry through the eviction hook.
type Store struct {
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	cache *gocache.Cache    // event ID -> domain.Event
	byFP  map[string]string // fingerprint -> event ID

	persisters []Persister
	persistCh  chan domain.Event
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewStore creates the working set and starts the persist worker when any
// persisters are configured.
func NewStore(cfg Config, persisters []Persister, logger *slog.Logger, metrics *observability.Metrics) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Store{
		ttl:        cfg.TTL,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		cache:      gocache.New(cfg.TTL, cfg.CleanupInterval),
		byFP:       make(map[string]string),
		persisters: persisters,
	}

	s.cache.OnEvicted(func(_ string, value interface{}) {
		event, ok := value.(domain.Event)
		if !ok {
			return
		}
		s.mu.Lock()
		if s.byFP[event.Fingerprint] == event.ID {
			delete(s.byFP, event.Fingerprint)
		}
		s.mu.Unlock()
		s.updateLiveGauge()
	})

	if len(persisters) > 0 {
		queue := cfg.QueueSize
		if queue <= 0 {
			queue = 256
		}
		s.persistCh = make(chan domain.Event, queue)
		s.wg.Add(1)
		go s.persistLoop()
	}

	return s
}

// Merge folds a draft into the live event sharing its fingerprint, if one
// exists. A successful merge bumps source_count and last_seen and extends
// expiry; the matched event's location and classification are kept. Returns
// false when no live match exists.
func (s *Store) Merge(draft domain.Draft) (domain.Event, bool) {
	s.mu.Lock()
	event, ok := s.mergeLocked(draft)
	s.mu.Unlock()

	if ok {
		s.metrics.EventsMerged.WithLabelValues(string(draft.Class)).Inc()
		s.enqueuePersist(event)
	}
	return event, ok
}

// Put inserts a fully processed event. If a live event with the same
// fingerprint appeared since the caller's dedup check, the insert collapses
// into a merge instead; the second return reports which happened.
func (s *Store) Put(event domain.Event) (domain.Event, bool) {
	s.mu.Lock()
	if merged, ok := s.mergeLocked(domain.Draft{
		Fingerprint: event.Fingerprint,
		Class:       event.Class,
		MediaURLs:   event.MediaURLs,
		RawTags:     event.RawTags,
	}); ok {
		s.mu.Unlock()
		s.metrics.EventsMerged.WithLabelValues(string(event.Class)).Inc()
		s.enqueuePersist(merged)
		return merged, true
	}

	now := s.clock.Now()
	if event.FirstSeen.IsZero() {
		event.FirstSeen = now
	}
	event.LastSeen = now
	if event.SourceCount == 0 {
		event.SourceCount = 1
	}
	event.ExpiresAt = now.Add(s.ttl)

	s.cache.Set(event.ID, event, s.ttl)
	s.byFP[event.Fingerprint] = event.ID
	s.mu.Unlock()

	s.metrics.EventsStored.WithLabelValues(string(event.Class)).Inc()
	s.updateLiveGauge()
	s.enqueuePersist(event)
	return event, false
}

func (s *Store) mergeLocked(draft domain.Draft) (domain.Event, bool) {
	id, ok := s.byFP[draft.Fingerprint]
	if !ok {
		return domain.Event{}, false
	}
	value, ok := s.cache.Get(id)
	if !ok {
		// Expired but not yet swept; drop the stale index entry.
		delete(s.byFP, draft.Fingerprint)
		return domain.Event{}, false
	}

	event := value.(domain.Event)
	now := s.clock.Now()
	event.LastSeen = now
	event.SourceCount++
	event.ExpiresAt = now.Add(s.ttl)
	event.MediaURLs = union(event.MediaURLs, draft.MediaURLs)
	event.RawTags = union(event.RawTags, draft.RawTags)

	s.cache.Set(id, event, s.ttl)
	return event, true
}

// Get returns a live event by ID.
func (s *Store) Get(id string) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.cache.Get(id)
	if !ok {
		return domain.Event{}, false
	}
	return value.(domain.Event), true
}

// List returns all live events, most recently seen first.
func (s *Store) List() []domain.Event {
	s.mu.Lock()
	items := s.cache.Items()
	s.mu.Unlock()

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		events = append(events, item.Object.(domain.Event))
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].LastSeen.After(events[j].LastSeen)
	})
	return events
}

// Stats is a point-in-time summary of the working set.
type Stats struct {
	Live         int                        `json:"live"`
	Breaking     int                        `json:"breaking"`
	HighSeverity int                        `json:"high_severity"`
	Unresolved   int                        `json:"unresolved"`
	ByClass      map[domain.SourceClass]int `json:"by_class"`
	ByCategory   map[domain.Category]int    `json:"by_category"`
	BySource     map[string]int             `json:"by_source"`
}

// Stats summarizes the live events.
func (s *Store) Stats() Stats {
	stats := Stats{
		ByClass:    make(map[domain.SourceClass]int),
		ByCategory: make(map[domain.Category]int),
		BySource:   make(map[string]int),
	}
	for _, event := range s.List() {
		stats.Live++
		stats.ByClass[event.Class]++
		stats.ByCategory[event.Category]++
		stats.BySource[event.Source]++
		if event.Breaking {
			stats.Breaking++
		}
		if event.Severity >= 4 {
			stats.HighSeverity++
		}
		if !event.Location.Resolved {
			stats.Unresolved++
		}
	}
	return stats
}

// Close stops the persist worker after draining queued writes.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.persistCh != nil {
			close(s.persistCh)
		}
	})
	s.wg.Wait()
}

func (s *Store) enqueuePersist(event domain.Event) {
	if s.persistCh == nil {
		return
	}
	select {
	case s.persistCh <- event:
	default:
		s.metrics.PersistDropped.Inc()
		s.logger.Warn("persist queue full, dropping write", "event_id", event.ID)
	}
}

func (s *Store) persistLoop() {
	defer s.wg.Done()
	for event := range s.persistCh {
		for _, p := range s.persisters {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			if err := p.Persist(ctx, event); err != nil {
				s.metrics.PersistFailures.Inc()
				s.logger.Error("durable write failed", "event_id", event.ID, "error", err)
			}
			cancel()
		}
	}
}

func (s *Store) updateLiveGauge() {
	s.mu.Lock()
	live := len(s.cache.Items())
	s.mu.Unlock()
	s.metrics.LiveEvents.Set(float64(live))
}

func union(base, extra []string) []string {
	for _, v := range extra {
		found := false
		for _, existing := range base {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			base = append(base, v)
		}
	}
	return base
}
