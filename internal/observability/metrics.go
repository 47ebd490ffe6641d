package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	ItemsFetched   *prometheus.CounterVec // labels: class
	ItemsMalformed *prometheus.CounterVec // labels: class
	EventsStored   *prometheus.CounterVec // labels: class
	EventsMerged   *prometheus.CounterVec // labels: class
	SourceFailures *prometheus.CounterVec // labels: class, source
	SourcesSkipped *prometheus.CounterVec // labels: class (backoff window still open)
	RunsRejected   *prometheus.CounterVec // labels: class (concurrent run guard)

	RoundDuration *prometheus.HistogramVec // labels: class
	LiveEvents    prometheus.Gauge
	SchedulerUp   prometheus.Gauge

	// Geotagging metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={resolved,nomatch,error}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeDuration prometheus.Histogram
	Unresolved      prometheus.Counter

	// Persistence metrics.
	PersistFailures prometheus.Counter
	PersistDropped  prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ItemsFetched,
		m.ItemsMalformed,
		m.EventsStored,
		m.EventsMerged,
		m.SourceFailures,
		m.SourcesSkipped,
		m.RunsRejected,
		m.RoundDuration,
		m.LiveEvents,
		m.SchedulerUp,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeDuration,
		m.Unresolved,
		m.PersistFailures,
		m.PersistDropped,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ItemsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "items_fetched_total",
			Help:      "Raw items pulled from upstream sources.",
		}, []string{"class"}),
		ItemsMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "items_malformed_total",
			Help:      "Raw items dropped because required fields were missing.",
		}, []string{"class"}),
		EventsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "events_stored_total",
			Help:      "New events written to the working set.",
		}, []string{"class"}),
		EventsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "events_merged_total",
			Help:      "Drafts merged into an existing live event by fingerprint.",
		}, []string{"class"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "source_failures_total",
			Help:      "Fetch failures per source.",
		}, []string{"class", "source"}),
		SourcesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "sources_skipped_total",
			Help:      "Sources skipped in a round because their backoff window was open.",
		}, []string{"class"}),
		RunsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "runs_rejected_total",
			Help:      "Manual refreshes rejected because a run for the class was in flight.",
		}, []string{"class"}),
		RoundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitrep",
			Name:      "round_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-store round per class.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"class"}),
		LiveEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitrep",
			Name:      "live_events",
			Help:      "Unexpired events currently in the working set.",
		}),
		SchedulerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitrep",
			Name:      "scheduler_up",
			Help:      "1 while the scheduler loops are running.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "geocode_requests_total",
			Help:      "Upstream geocode requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "geocode_cache_total",
			Help:      "GeoCache lookups by result.",
		}, []string{"result"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitrep",
			Name:      "geocode_duration_seconds",
			Help:      "Upstream geocode request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "events_unresolved_total",
			Help:      "Events retained without a resolved location.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "persist_failures_total",
			Help:      "Durable store writes that failed (cache write already succeeded).",
		}),
		PersistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitrep",
			Name:      "persist_dropped_total",
			Help:      "Persist requests dropped because the write queue was full.",
		}),
	}
}
