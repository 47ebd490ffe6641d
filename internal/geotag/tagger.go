package geotag

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/observability"
)

// hintConfidence is assigned to candidates derived from source hints
// (hashtags, reported country) rather than the entity model.
const hintConfidence = 0.6

// maxGeocodeCandidates bounds how many lookups a single item may spend.
const maxGeocodeCandidates = 4

// Tagger resolves the best location for a draft event by combining entity
// extraction with geocoding. Explicit coordinates in the text win outright;
// otherwise the candidate with the highest extraction-times-geocode
// confidence product does.
type Tagger struct {
	extractor Extractor
	geocoder  domain.Geocoder
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func NewTagger(extractor Extractor, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *Tagger {
	return &Tagger{
		extractor: extractor,
		geocoder:  geocoder,
		logger:    logger,
		metrics:   metrics,
	}
}

// Tag returns the resolved location for the draft, or an unresolved Location
// naming the best candidate when nothing geocodes. The event is kept either
// way.
func (t *Tagger) Tag(ctx context.Context, draft domain.Draft) domain.Location {
	text := draft.Title
	if draft.Excerpt != "" {
		text = text + ". " + draft.Excerpt
	}

	if c, ok := CoordsInText(text); ok {
		return domain.Location{
			Lat:        c.Lat,
			Lon:        c.Lon,
			Name:       c.Text,
			Confidence: c.Confidence,
			Resolved:   true,
		}
	}

	// No geocoder configured: explicit coordinates above still resolve,
	// everything else stays unresolved.
	if t.geocoder == nil {
		if t.metrics != nil {
			t.metrics.Unresolved.Inc()
		}
		return domain.Location{}
	}

	candidates := t.extractor.Extract(text)
	for _, hint := range draft.Hints {
		candidates = appendCandidate(candidates, Candidate{Text: hint, Confidence: hintConfidence})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > maxGeocodeCandidates {
		candidates = candidates[:maxGeocodeCandidates]
	}

	var best domain.Location
	for _, c := range candidates {
		// A lower-confidence candidate cannot beat the current best even
		// with a perfect geocode match, so stop spending lookups.
		if best.Resolved && best.Confidence >= c.Confidence {
			break
		}

		result, err := t.geocoder.Geocode(ctx, c.Text)
		if err != nil {
			t.logger.Warn("geocode failed", "place", c.Text, "error", err)
			continue
		}
		if !result.Found() {
			continue
		}

		score := c.Confidence * result.Relevance
		if !best.Resolved || score > best.Confidence {
			best = domain.Location{
				Lat:         result.Lat,
				Lon:         result.Lon,
				Name:        c.Text,
				CountryCode: countryFromDisplayName(result.DisplayName),
				Confidence:  score,
				Resolved:    true,
			}
		}
	}

	if !best.Resolved {
		if t.metrics != nil {
			t.metrics.Unresolved.Inc()
		}
		if len(candidates) > 0 {
			best.Name = candidates[0].Text
		}
	}
	return best
}

func appendCandidate(list []Candidate, c Candidate) []Candidate {
	for _, existing := range list {
		if strings.EqualFold(existing.Text, c.Text) {
			return list
		}
	}
	return append(list, c)
}

// countryFromDisplayName takes the trailing component of a geocoder display
// name ("Kyiv, Ukraine" yields "Ukraine").
func countryFromDisplayName(name string) string {
	parts := strings.Split(name, ",")
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[len(parts)-1])
}
