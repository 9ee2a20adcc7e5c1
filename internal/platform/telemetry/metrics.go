package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ditto"

// Render outcomes.
const (
	RenderCached   = "cache_hit"
	RenderDrawn    = "rendered"
	RenderFallback = "fallback"
	RenderFailed   = "error"
)

// Sync results.
const (
	SyncSucceeded   = "success"
	SyncFailed      = "failure"
	SyncRateLimited = "rate_limited"
)

// Metrics are the domain counters exposed on /-/metrics. A nil *Metrics
// records nothing.
type Metrics struct {
	renders        *prometheus.CounterVec
	renderDuration prometheus.Histogram
	navigations    *prometheus.CounterVec
	syncRuns       *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	catalogSize    prometheus.Gauge
	clients        prometheus.Gauge
	pauses         prometheus.Counter
	pausedSeconds  prometheus.Counter
}

// NewMetrics creates the domain metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Cards served, by outcome.",
		}, []string{"outcome"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time to produce a card, cache hits included.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Deck navigations, by direction.",
		}, []string{"direction"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Catalog sync runs, by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of catalog sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_quotes",
			Help:      "Quotes in the local catalog after the last sync.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_clients",
			Help:      "Registered display clients.",
		}),
		pauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_rate_limit_pauses_total",
			Help:      "Times a 429 from upstream paused every outgoing call.",
		}),
		pausedSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_rate_limit_paused_seconds_total",
			Help:      "Total time outgoing calls were paused by upstream rate limits.",
		}),
	}

	collectors := []prometheus.Collector{
		m.renders, m.renderDuration, m.navigations, m.syncRuns, m.syncDuration,
		m.catalogSize, m.clients, m.pauses, m.pausedSeconds,
	}

	var errs []error
	for _, c := range collectors {
		errs = append(errs, reg.Register(c))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveRender records one served card.
func (m *Metrics) ObserveRender(outcome string, d time.Duration) {
	if m == nil {
		return
	}

	m.renders.WithLabelValues(outcome).Inc()
	m.renderDuration.Observe(d.Seconds())
}

// ObserveNavigation counts a deck move.
func (m *Metrics) ObserveNavigation(direction string) {
	if m == nil {
		return
	}

	m.navigations.WithLabelValues(direction).Inc()
}

// ObserveSync records a sync run.
func (m *Metrics) ObserveSync(result string, d time.Duration) {
	if m == nil {
		return
	}

	m.syncRuns.WithLabelValues(result).Inc()
	m.syncDuration.Observe(d.Seconds())
}

// SetCatalog reports catalog and client counts.
func (m *Metrics) SetCatalog(quotes, clients int) {
	if m == nil {
		return
	}

	m.catalogSize.Set(float64(quotes))
	m.clients.Set(float64(clients))
}

// ObservePause records an upstream rate limit pause. Its signature fits
// clients.RateGate.OnPause.
func (m *Metrics) ObservePause(d time.Duration) {
	if m == nil {
		return
	}

	m.pauses.Inc()
	m.pausedSeconds.Add(d.Seconds())
}
