package nominatim

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory result cache and a rate
// limiter. The limiter gates only upstream calls; cache hits never wait.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *gocache.Cache
	limiter *rate.Limiter
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a caching, rate-limited decorator around a
// geocoder. requestsPerSec should match the upstream provider's policy
// (1 for the public Nominatim instance).
func NewCachedGeocoder(inner domain.Geocoder, requestsPerSec float64, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner: inner,
		// Place names repeat across rounds for the lifetime of the process,
		// so entries never expire.
		cache:   gocache.New(gocache.NoExpiration, 0),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, place string) (domain.GeocodeResult, error) {
	key := strings.ToLower(strings.TrimSpace(place))
	if cached, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return cached.(domain.GeocodeResult), nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.GeocodeResult{}, err
	}

	start := time.Now()
	result, err := c.inner.Geocode(ctx, place)
	c.metrics.GeocodeDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return result, err
	case !result.Found():
		c.metrics.GeocodeRequests.WithLabelValues("nomatch").Inc()
		// Misses are not cached so transient provider gaps can be retried.
		return result, nil
	default:
		c.metrics.GeocodeRequests.WithLabelValues("resolved").Inc()
		c.cache.Set(key, result, gocache.NoExpiration)
		return result, nil
	}
}
