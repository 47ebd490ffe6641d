// Package geotag turns free text into resolved coordinates: a pluggable
// entity-extraction pass proposes place candidates, and a rate-limited,
// cached geocoder resolves them.
package geotag

import (
	"regexp"
	"strconv"
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// nerTextLimit bounds how much text the NER model sees per item, for speed.
const nerTextLimit = 1000

// Candidate is one possible place reference extracted from text. Candidates
// carrying coordinates (from an explicit lat/lon in the text) skip geocoding
// entirely.
type Candidate struct {
	Text       string
	Confidence float64
	Lat        float64
	Lon        float64
	HasCoords  bool
}

// Extractor proposes place candidates from free text. Implementations must be
// safe for concurrent use.
type Extractor interface {
	Extract(text string) []Candidate
}

var (
	// decimalCoordRe matches "48.86, 2.35" style inline coordinates.
	decimalCoordRe = regexp.MustCompile(`(-?\d{1,3}\.\d+)\s*[,/]\s*(-?\d{1,3}\.\d+)`)

	// dmsCoordRe matches "51°30′N 0°7′W" style coordinates.
	dmsCoordRe = regexp.MustCompile(`(\d{1,3})°(\d{1,2})′([NS])\s+(\d{1,3})°(\d{1,2})′([EW])`)
)

// CoordsInText scans for explicit coordinates, decimal first, then
// degree-minute notation. Explicit coordinates are authoritative
// (confidence 1.0).
func CoordsInText(text string) (Candidate, bool) {
	if m := decimalCoordRe.FindStringSubmatch(text); m != nil {
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 {
			return Candidate{Text: m[0], Confidence: 1.0, Lat: lat, Lon: lon, HasCoords: true}, true
		}
	}

	if m := dmsCoordRe.FindStringSubmatch(text); m != nil {
		lat := dmsToDecimal(m[1], m[2])
		if m[3] == "S" {
			lat = -lat
		}
		lon := dmsToDecimal(m[4], m[5])
		if m[6] == "W" {
			lon = -lon
		}
		return Candidate{Text: m[0], Confidence: 1.0, Lat: lat, Lon: lon, HasCoords: true}, true
	}

	return Candidate{}, false
}

func dmsToDecimal(deg, minutes string) float64 {
	d, _ := strconv.Atoi(deg)
	m, _ := strconv.Atoi(minutes)
	return float64(d) + float64(m)/60
}

// NERExtractor proposes candidates using a statistical named-entity model
// (prose). Only geopolitical entities are kept.
type NERExtractor struct {
	// Confidence assigned to model-proposed candidates; the model itself
	// does not expose per-entity scores.
	Confidence float64
}

// NewNERExtractor returns the default extractor with a 0.85 base confidence.
func NewNERExtractor() *NERExtractor {
	return &NERExtractor{Confidence: 0.85}
}

func (e *NERExtractor) Extract(text string) []Candidate {
	if len(text) > nerTextLimit {
		text = text[:nerTextLimit]
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, ent := range doc.Entities() {
		if ent.Label != "GPE" {
			continue
		}
		place := strings.TrimSpace(ent.Text)
		key := strings.ToLower(place)
		if place == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Candidate{Text: place, Confidence: e.Confidence})
	}
	return out
}
