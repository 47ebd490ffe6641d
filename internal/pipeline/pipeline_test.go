package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/observability"
	"github.com/greyledger/sitrep/internal/scheduler"
	"github.com/greyledger/sitrep/internal/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSource struct {
	id    string
	class domain.SourceClass
	items []domain.RawItem
	err   error

	mu    sync.Mutex
	calls int
}

func (s *stubSource) ID() string                { return s.id }
func (s *stubSource) Label() string             { return s.id }
func (s *stubSource) Class() domain.SourceClass { return s.class }

func (s *stubSource) Fetch(context.Context) ([]domain.RawItem, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func (s *stubSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeTagger struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTagger) Tag(context.Context, domain.Draft) domain.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return domain.Location{Lat: 1, Lon: 2, Name: "somewhere", Resolved: true}
}

func (f *fakeTagger) tagCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(event *domain.Event) {
	event.Category = domain.CategoryConflict
	event.Severity = 3
}

// fakeStore merges drafts whose fingerprint it has already seen via Put.
type fakeStore struct {
	mu     sync.Mutex
	events map[string]domain.Event // fingerprint -> event
	merges int
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string]domain.Event)}
}

func (f *fakeStore) Merge(draft domain.Draft) (domain.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[draft.Fingerprint]
	if !ok {
		return domain.Event{}, false
	}
	event.SourceCount++
	f.events[draft.Fingerprint] = event
	f.merges++
	return event, true
}

func (f *fakeStore) Put(event domain.Event) (domain.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[event.Fingerprint] = event
	return event, false
}

func (f *fakeStore) stored() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out
}

func rssItem(t *testing.T, title, link string) domain.RawItem {
	t.Helper()
	payload, err := json.Marshal(domain.RSSPayload{
		Title:     title,
		Link:      link,
		Published: time.Date(2026, 4, 26, 15, 10, 0, 0, time.UTC).Format(time.RFC3339),
	})
	require.NoError(t, err)
	return domain.RawItem{
		SourceID:  "rss:test",
		Label:     "Test Feed",
		Class:     domain.ClassRSS,
		FetchedAt: time.Date(2026, 4, 26, 15, 12, 0, 0, time.UTC),
		Payload:   payload,
	}
}

type fixture struct {
	pipeline *Pipeline
	tracker  *scheduler.Tracker
	tagger   *fakeTagger
	store    *fakeStore
}

func newFixture(t *testing.T, sources ...source.Source) *fixture {
	t.Helper()
	tracker := scheduler.NewTracker(time.Minute, time.Hour, clockwork.NewFakeClock())
	tagger := &fakeTagger{}
	store := newFakeStore()
	p := New(sources, tracker, tagger, fakeClassifier{}, store,
		domain.DefaultNormalizeConfig(), 2, discardLogger(), observability.NewMetricsForTesting())
	return &fixture{pipeline: p, tracker: tracker, tagger: tagger, store: store}
}

func TestRunClass_StoresNormalizedEvents(t *testing.T) {
	src := &stubSource{id: "rss:test", class: domain.ClassRSS, items: []domain.RawItem{
		rssItem(t, "Explosion reported in city centre", "https://example.com/1"),
		rssItem(t, "Flooding closes main bridge", "https://example.com/2"),
	}}
	f := newFixture(t, src)

	require.NoError(t, f.pipeline.RunClass(context.Background(), domain.ClassRSS))

	events := f.store.stored()
	require.Len(t, events, 2)
	for _, event := range events {
		assert.NotEmpty(t, event.ID)
		assert.NotEmpty(t, event.Fingerprint)
		assert.Equal(t, domain.CategoryConflict, event.Category)
		assert.True(t, event.Location.Resolved)
		assert.Equal(t, 1, event.SourceCount)
	}
	assert.Equal(t, 2, f.tagger.tagCount())
}

func TestRunClass_DuplicateSkipsGeotagging(t *testing.T) {
	item := rssItem(t, "Explosion reported in city centre", "https://example.com/1")
	src := &stubSource{id: "rss:test", class: domain.ClassRSS, items: []domain.RawItem{item, item}}
	f := newFixture(t, src)

	require.NoError(t, f.pipeline.RunClass(context.Background(), domain.ClassRSS))

	require.Len(t, f.store.stored(), 1)
	assert.Equal(t, 1, f.store.merges)
	// Only the first sighting paid for a geocode.
	assert.Equal(t, 1, f.tagger.tagCount())
}

func TestRunClass_MalformedItemsAreDroppedNotFatal(t *testing.T) {
	bad := rssItem(t, "", "https://example.com/broken")
	good := rssItem(t, "Explosion reported in city centre", "https://example.com/1")
	src := &stubSource{id: "rss:test", class: domain.ClassRSS, items: []domain.RawItem{bad, good}}
	f := newFixture(t, src)

	require.NoError(t, f.pipeline.RunClass(context.Background(), domain.ClassRSS))

	assert.Len(t, f.store.stored(), 1)
}

func TestRunClass_SourceFailureIsIsolated(t *testing.T) {
	broken := &stubSource{id: "rss:down", class: domain.ClassRSS, err: domain.ErrSourceUnavailable}
	healthy := &stubSource{id: "rss:up", class: domain.ClassRSS, items: []domain.RawItem{
		rssItem(t, "Explosion reported in city centre", "https://example.com/1"),
	}}
	f := newFixture(t, broken, healthy)

	require.NoError(t, f.pipeline.RunClass(context.Background(), domain.ClassRSS))

	assert.Len(t, f.store.stored(), 1)
	// The failing source entered its backoff window; the healthy one did not.
	assert.False(t, f.tracker.Ready("rss:down"))
	assert.True(t, f.tracker.Ready("rss:up"))
}

func TestRunClass_BackedOffSourceIsSkipped(t *testing.T) {
	src := &stubSource{id: "rss:test", class: domain.ClassRSS}
	f := newFixture(t, src)
	f.tracker.Failure("rss:test")

	require.NoError(t, f.pipeline.RunClass(context.Background(), domain.ClassRSS))

	assert.Equal(t, 0, src.fetchCount())
}

func TestRunClass_OnlyFetchesOwnClass(t *testing.T) {
	rss := &stubSource{id: "rss:test", class: domain.ClassRSS}
	social := &stubSource{id: "social:api:test", class: domain.ClassSocial}
	f := newFixture(t, rss, social)

	require.NoError(t, f.pipeline.RunClass(context.Background(), domain.ClassSocial))

	assert.Equal(t, 0, rss.fetchCount())
	assert.Equal(t, 1, social.fetchCount())
}

func TestCheckReadiness(t *testing.T) {
	src := &stubSource{id: "rss:test", class: domain.ClassRSS}
	f := newFixture(t, src)

	assert.Error(t, f.pipeline.CheckReadiness(context.Background()))

	require.NoError(t, f.pipeline.RunClass(context.Background(), domain.ClassRSS))

	assert.NoError(t, f.pipeline.CheckReadiness(context.Background()))
}

func TestRunClass_CancelledContext(t *testing.T) {
	src := &stubSource{id: "rss:test", class: domain.ClassRSS, items: []domain.RawItem{
		rssItem(t, "Explosion reported in city centre", "https://example.com/1"),
	}}
	f := newFixture(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, f.pipeline.RunClass(ctx, domain.ClassRSS))
	assert.Error(t, f.pipeline.CheckReadiness(context.Background()))
}
