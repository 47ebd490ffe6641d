package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rssItem(t *testing.T, p RSSPayload) RawItem {
	t.Helper()
	payload, err := json.Marshal(p)
	require.NoError(t, err)
	return RawItem{
		SourceID:  "rss:bbc-world",
		Label:     "BBC World",
		Class:     ClassRSS,
		FetchedAt: time.Now(),
		Payload:   payload,
	}
}

func TestNormalize_RSS(t *testing.T) {
	raw := rssItem(t, RSSPayload{
		Title:     "  Explosion reported in City X  ",
		Summary:   "<p>Multiple <b>casualties</b> feared.</p>",
		Link:      "https://example.org/articles/1",
		Published: "2024-04-26T15:04:00Z",
	})

	draft, err := Normalize(raw, DefaultNormalizeConfig())
	require.NoError(t, err)

	assert.Equal(t, "Explosion reported in City X", draft.Title)
	assert.Equal(t, "Multiple casualties feared.", draft.Excerpt)
	assert.Equal(t, "BBC World", draft.Source)
	assert.Equal(t, ClassRSS, draft.Class)
	assert.Equal(t, time.Date(2024, 4, 26, 15, 4, 0, 0, time.UTC), draft.PublishedAt)
	assert.NotEmpty(t, draft.ID)
	assert.NotEmpty(t, draft.Fingerprint)
}

func TestNormalize_RSS_MissingTitle(t *testing.T) {
	raw := rssItem(t, RSSPayload{Published: "2024-04-26T15:04:00Z"})

	_, err := Normalize(raw, DefaultNormalizeConfig())
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestNormalize_RSS_MissingTimestamp(t *testing.T) {
	raw := rssItem(t, RSSPayload{Title: "Explosion reported"})

	_, err := Normalize(raw, DefaultNormalizeConfig())
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestNormalize_Index(t *testing.T) {
	payload, err := json.Marshal(IndexPayload{
		Title:         "Flooding displaces thousands",
		URL:           "https://news.example.org/flood",
		Domain:        "news.example.org",
		SeenDate:      "20240426T151000Z",
		Description:   "Flash floods after heavy rain.",
		SocialImage:   "https://news.example.org/flood.jpg",
		Themes:        "NATURAL_DISASTER;CRISISLEX_CRISISLEXREC",
		SourceCountry: "Bangladesh",
	})
	require.NoError(t, err)

	draft, err := Normalize(RawItem{SourceID: "index:gdelt", Label: "GDELT", Class: ClassIndex, Payload: payload}, DefaultNormalizeConfig())
	require.NoError(t, err)

	assert.Equal(t, "news.example.org", draft.Source)
	assert.Equal(t, time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC), draft.PublishedAt)
	assert.Equal(t, []string{"https://news.example.org/flood.jpg"}, draft.MediaURLs)
	assert.Equal(t, []string{"NATURAL_DISASTER", "CRISISLEX_CRISISLEXREC"}, draft.RawTags)
	assert.Equal(t, []string{"Bangladesh"}, draft.Hints)
}

func TestNormalize_Social_HashtagHints(t *testing.T) {
	payload, err := json.Marshal(SocialPayload{
		Account:   "OSINTdefender",
		Text:      "Heavy shelling reported near #Kharkiv tonight. #Kharkiv #Ukraine",
		Published: "2024-04-26T21:30:00Z",
	})
	require.NoError(t, err)

	draft, err := Normalize(RawItem{SourceID: "social:OSINTdefender", Label: "@OSINTdefender", Class: ClassSocial, Payload: payload}, DefaultNormalizeConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"Kharkiv", "Ukraine"}, draft.Hints, "hints deduplicated, order preserved")
	assert.Equal(t, "@OSINTdefender", draft.Source)
}

func TestNormalize_TruncationKeepsValidUTF8(t *testing.T) {
	// A long Cyrillic post: clamping the title at 120 bytes and the excerpt
	// at the configured limit lands mid-rune unless the cut backs off.
	text := strings.Repeat("Обстрелы ", 40)
	payload, err := json.Marshal(SocialPayload{
		Account:   "OSINTdefender",
		Text:      text,
		Published: "2024-04-26T15:04:00Z",
	})
	require.NoError(t, err)

	cfg := DefaultNormalizeConfig()
	cfg.ExcerptLimit = 124
	draft, err := Normalize(RawItem{
		SourceID:  "social:api:OSINTdefender",
		Label:     "@OSINTdefender",
		Class:     ClassSocial,
		FetchedAt: time.Now(),
		Payload:   payload,
	}, cfg)

	require.NoError(t, err)
	assert.True(t, utf8.ValidString(draft.Title))
	assert.True(t, utf8.ValidString(draft.Excerpt))
	assert.LessOrEqual(t, len(draft.Title), 120)
	assert.LessOrEqual(t, len(draft.Excerpt), 124)
}

func TestFingerprint_AbsorbsTimestampJitter(t *testing.T) {
	base := time.Date(2024, 4, 26, 15, 2, 0, 0, time.UTC)
	bucket := 15 * time.Minute

	a := Fingerprint("Explosion reported in City X", ClassRSS, base, bucket)
	b := Fingerprint("explosion  reported in City X", ClassRSS, base.Add(4*time.Minute), bucket)
	assert.Equal(t, a, b, "same title from two feeds 4 minutes apart must collide")

	c := Fingerprint("Explosion reported in City X", ClassRSS, base.Add(bucket), bucket)
	assert.NotEqual(t, a, c, "next bucket must not collide")
}

func TestFingerprint_SeparatesClasses(t *testing.T) {
	at := time.Date(2024, 4, 26, 15, 2, 0, 0, time.UTC)
	assert.NotEqual(t,
		Fingerprint("Explosion reported", ClassRSS, at, 15*time.Minute),
		Fingerprint("Explosion reported", ClassSocial, at, 15*time.Minute),
	)
}

func TestEventID_Deterministic(t *testing.T) {
	a := EventID("https://example.org/1", "Explosion reported")
	b := EventID("https://example.org/1", "Explosion reported")
	c := EventID("https://example.org/2", "Explosion reported")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
