package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyledger/sitrep/internal/domain"
)

func newMockPersister(t *testing.T) (*Persister, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPersister(sqlx.NewDb(db, "sqlmock"), logger), mock
}

func archivedEvent() domain.Event {
	now := time.Date(2026, 4, 26, 15, 10, 0, 0, time.UTC)
	return domain.Event{
		ID:          "a1b2c3",
		Fingerprint: "fp1",
		Title:       "Explosion reported in city centre",
		URL:         "https://example.com/article",
		Source:      "BBC World",
		Class:       domain.ClassRSS,
		Category:    domain.CategoryConflict,
		Topics:      []string{"war"},
		Severity:    4,
		Breaking:    true,
		Location:    domain.Location{Lat: 50.45, Lon: 30.52, Name: "Kyiv", CountryCode: "Ukraine", Confidence: 0.7, Resolved: true},
		PublishedAt: now.Add(-10 * time.Minute),
		FirstSeen:   now,
		LastSeen:    now,
		SourceCount: 1,
		ExpiresAt:   now.Add(12 * time.Hour),
	}
}

func TestPersist_Upserts(t *testing.T) {
	p, mock := newMockPersister(t)
	event := archivedEvent()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(
			event.ID, event.Fingerprint, event.Title, event.Excerpt, event.URL,
			event.Source, "rss", "conflict", pq.StringArray(event.Topics),
			event.Severity, event.Breaking, event.Location.Lat, event.Location.Lon,
			event.Location.Name, event.Location.CountryCode, event.Location.Confidence,
			event.Location.Resolved, pq.StringArray(event.MediaURLs),
			pq.StringArray(event.RawTags), event.PublishedAt, event.FirstSeen,
			event.LastSeen, event.SourceCount, event.ExpiresAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.Persist(context.Background(), event)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_WrapsDriverError(t *testing.T) {
	p, mock := newMockPersister(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnError(errors.New("connection refused"))

	err := p.Persist(context.Background(), archivedEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert event a1b2c3")
}

func TestListRange_MapsRows(t *testing.T) {
	p, mock := newMockPersister(t)
	from := time.Date(2026, 4, 26, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	seen := from.Add(15 * time.Hour)

	columns := []string{
		"id", "fingerprint", "title", "excerpt", "url", "source", "source_class",
		"category", "topics", "severity", "breaking", "lat", "lon",
		"location_name", "country_code", "confidence", "resolved", "media_urls",
		"raw_tags", "published_at", "first_seen", "last_seen", "source_count",
		"expires_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"a1b2c3", "fp1", "Explosion reported in city centre", "", "https://example.com/article",
			"BBC World", "rss", "conflict", "{war}", 4, true, 50.45, 30.52,
			"Kyiv", "Ukraine", 0.7, true, "{}", "{}", seen.Add(-time.Hour), seen,
			seen, 2, seen.Add(12*time.Hour),
		))

	events, err := p.ListRange(context.Background(), from, to)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a1b2c3", events[0].ID)
	assert.Equal(t, domain.ClassRSS, events[0].Class)
	assert.Equal(t, domain.CategoryConflict, events[0].Category)
	assert.Equal(t, []string{"war"}, events[0].Topics)
	assert.Equal(t, 2, events[0].SourceCount)
	assert.True(t, events[0].Location.Resolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	p, mock := newMockPersister(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS events")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
