package domain

import "context"

// GeocodeResult contains location data returned by a geocoding provider.
// A zero result (no coordinates, empty display name) means no match.
type GeocodeResult struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Relevance   float64 // 0.0–1.0 provider match quality
}

// Found reports whether the provider matched the query at all.
func (r GeocodeResult) Found() bool {
	return r.DisplayName != "" || r.Lat != 0 || r.Lon != 0
}

// Geocoder resolves a free-text place reference to coordinates. Implementations
// are expected to be safe for concurrent use; rate limiting and caching are
// decorator concerns, not part of this contract.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (GeocodeResult, error)
}
