package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/greyledger/sitrep/internal/domain"
)

const defaultIndexBaseURL = "https://api.gdeltproject.org/api/v2/doc/doc"

// defaultIndexQuery matches the crisis vocabulary the working set cares about.
const defaultIndexQuery = "crisis OR attack OR explosion OR earthquake OR flood OR shooting OR protest"

// IndexSource queries the GDELT doc API for articles seen in the last
// polling window.
type IndexSource struct {
	baseURL    string
	query      string
	timespan   string
	maxRecords int
	httpClient *http.Client
}

// NewIndexSource creates the structured event-index client. Pass an empty
// query to use the default crisis vocabulary.
func NewIndexSource(query string, timeout time.Duration) *IndexSource {
	if query == "" {
		query = defaultIndexQuery
	}
	return &IndexSource{
		baseURL:    defaultIndexBaseURL,
		query:      query,
		timespan:   "15min",
		maxRecords: 75,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *IndexSource) ID() string                { return "index:gdelt" }
func (s *IndexSource) Label() string             { return "GDELT" }
func (s *IndexSource) Class() domain.SourceClass { return domain.ClassIndex }

// indexResponse mirrors the GDELT artlist JSON envelope.
type indexResponse struct {
	Articles []domain.IndexPayload `json:"articles"`
}

func (s *IndexSource) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	params := url.Values{
		"query":      {s.query},
		"mode":       {"artlist"},
		"maxrecords": {fmt.Sprint(s.maxRecords)},
		"timespan":   {s.timespan},
		"format":     {"json"},
		"sort":       {"HybridRel"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch event index: %w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("event index status %d: %s: %w", resp.StatusCode, body, domain.ErrSourceUnavailable)
	}

	var decoded indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode index response: %w: %w", domain.ErrSourceUnavailable, err)
	}

	now := time.Now().UTC()
	items := make([]domain.RawItem, 0, len(decoded.Articles))
	for _, art := range decoded.Articles {
		data, err := json.Marshal(art)
		if err != nil {
			continue
		}
		items = append(items, domain.RawItem{
			SourceID:  s.ID(),
			Label:     s.Label(),
			Class:     domain.ClassIndex,
			FetchedAt: now,
			Payload:   data,
		})
	}
	return items, nil
}
