package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyledger/sitrep/internal/domain"
)

const mirrorFixture = `<!doctype html>
<html><body>
  <div class="timeline-item">
    <div class="tweet-content">Heavy shelling reported near #Kharkiv tonight.</div>
    <span class="tweet-date"><a title="Apr 26, 2024 · 9:30 PM UTC" href="/s/1">Apr 26</a></span>
    <div class="attachment"><img src="/pic/media.jpg"/></div>
  </div>
  <div class="timeline-item">
    <div class="tweet-content">Convoy movement on the M03 highway.</div>
    <span class="tweet-date"><a title="not a timestamp" href="/s/2">Apr 26</a></span>
  </div>
  <div class="timeline-item">
    <div class="tweet-content"></div>
  </div>
</body></html>`

func TestMirrorSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/OSINTdefender", r.URL.Path)
		fmt.Fprint(w, mirrorFixture)
	}))
	defer srv.Close()

	s := NewMirrorSource("OSINTdefender", srv.URL+"/", "Mozilla/5.0 (test)", 5*time.Second)
	items, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2, "empty posts skipped")

	var first domain.SocialPayload
	require.NoError(t, json.Unmarshal(items[0].Payload, &first))
	assert.Equal(t, "Heavy shelling reported near #Kharkiv tonight.", first.Text)
	assert.Equal(t, "2024-04-26T21:30:00Z", first.Published)
	assert.Equal(t, []string{srv.URL + "/pic/media.jpg"}, first.MediaURLs)
	assert.Equal(t, "mirror", first.Method)

	// Unparseable tooltip falls back to fetch time rather than dropping.
	var second domain.SocialPayload
	require.NoError(t, json.Unmarshal(items[1].Payload, &second))
	assert.NotEmpty(t, second.Published)
}

func TestMirrorSource_Fetch_InstanceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewMirrorSource("OSINTdefender", srv.URL, "Mozilla/5.0 (test)", time.Second)
	_, err := s.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
