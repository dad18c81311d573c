// Package metrics is the process-wide Prometheus registry, exposed by
// internal/httpapi's /metrics endpoint. Grounded on the teacher's
// internal/interfaces/http/metrics.go MetricsRegistry: a single struct
// bundling every counter/gauge/histogram, constructed once at startup and
// threaded into the components that record against it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fmenezes/anxiousbot/internal/netutil/circuit"
)

// Registry holds every metric this process exposes.
type Registry struct {
	DealsOpened  *prometheus.CounterVec
	DealsUpdated *prometheus.CounterVec
	DealsClosed  *prometheus.CounterVec
	MatchProfit  *prometheus.HistogramVec
	MatchLatency *prometheus.HistogramVec

	IngestionErrors *prometheus.CounterVec
	IngestionLag    *prometheus.HistogramVec

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	NotifyQueueDepth prometheus.Gauge
	NotifyDropped    prometheus.Counter

	BreakerState *prometheus.GaugeVec
}

// NewRegistry builds and registers every metric against reg, or against
// prometheus.DefaultRegisterer when reg is nil.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := func() *Registry {
		return &Registry{
			DealsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "arbirun_deals_opened_total",
				Help: "Deals transitioned to open, by kind (pair/trio) and symbol set.",
			}, []string{"kind", "key"}),
			DealsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "arbirun_deals_updated_total",
				Help: "Deals that stayed open with a refreshed threshold crossing.",
			}, []string{"kind", "key"}),
			DealsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "arbirun_deals_closed_total",
				Help: "Deals transitioned to closed, by kind and symbol set.",
			}, []string{"kind", "key"}),
			MatchProfit: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "arbirun_match_profit_percentage",
				Help:    "Distribution of profit_percentage across every match evaluation, open or not.",
				Buckets: []float64{-5, -1, -0.1, 0, 0.1, 0.5, 1, 2, 5, 10},
			}, []string{"kind"}),
			MatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "arbirun_match_duration_seconds",
				Help:    "Wall-clock time to evaluate one pair or trio candidate.",
				Buckets: prometheus.DefBuckets,
			}, []string{"kind"}),
			IngestionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "arbirun_ingestion_errors_total",
				Help: "Classified ingestion fetch errors, by venue and error kind.",
			}, []string{"venue", "kind"}),
			IngestionLag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "arbirun_ingestion_fetch_seconds",
				Help:    "Wall-clock time for one ingestion fetch-and-store cycle.",
				Buckets: prometheus.DefBuckets,
			}, []string{"venue", "mode"}),
			CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "arbirun_cache_hits_total",
				Help: "Cache reads that found a live value, by key kind.",
			}, []string{"key_kind"}),
			CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "arbirun_cache_misses_total",
				Help: "Cache reads that found nothing or an expired value, by key kind.",
			}, []string{"key_kind"}),
			NotifyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "arbirun_notify_queue_depth",
				Help: "Current number of queued outbound notifications.",
			}),
			NotifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "arbirun_notify_dropped_total",
				Help: "Outbound notifications dropped because the queue was full.",
			}),
			BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "arbirun_circuit_breaker_state",
				Help: "0=closed, 1=open, 2=half-open, per venue.",
			}, []string{"venue"}),
		}
	}
	r := factory()
	reg.MustRegister(
		r.DealsOpened, r.DealsUpdated, r.DealsClosed,
		r.MatchProfit, r.MatchLatency,
		r.IngestionErrors, r.IngestionLag,
		r.CacheHits, r.CacheMisses,
		r.NotifyQueueDepth, r.NotifyDropped,
		r.BreakerState,
	)
	return r
}

// RecordDealTransition records an open/update/close/noop outcome. action
// is one of "open", "update", "close", "noop"; noop is not counted since
// there is nothing to observe.
func (r *Registry) RecordDealTransition(kind, key, action string) {
	switch action {
	case "open":
		r.DealsOpened.WithLabelValues(kind, key).Inc()
	case "update":
		r.DealsUpdated.WithLabelValues(kind, key).Inc()
	case "close":
		r.DealsClosed.WithLabelValues(kind, key).Inc()
	}
}

// RecordMatch observes one match evaluation's profit percentage and the
// time it took to compute it.
func (r *Registry) RecordMatch(kind string, profitPercentage float64, elapsed time.Duration) {
	r.MatchProfit.WithLabelValues(kind).Observe(profitPercentage)
	r.MatchLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordIngestionError increments the venue's error counter under the
// given error kind label; fetch latency is recorded separately by
// RecordIngestionLatency.
func (r *Registry) RecordIngestionError(venueID, kind string) {
	r.IngestionErrors.WithLabelValues(venueID, kind).Inc()
}

func (r *Registry) RecordIngestionLatency(venueID, mode string, elapsed time.Duration) {
	r.IngestionLag.WithLabelValues(venueID, mode).Observe(elapsed.Seconds())
}

func (r *Registry) RecordCacheHit(keyKind string)  { r.CacheHits.WithLabelValues(keyKind).Inc() }
func (r *Registry) RecordCacheMiss(keyKind string) { r.CacheMisses.WithLabelValues(keyKind).Inc() }

func (r *Registry) SetNotifyQueueDepth(depth int) { r.NotifyQueueDepth.Set(float64(depth)) }
func (r *Registry) IncNotifyDropped()             { r.NotifyDropped.Inc() }

// ObserveBreaker snapshots one venue's breaker state into the gauge;
// intended to be called on a periodic sweep rather than per-call.
func (r *Registry) ObserveBreaker(venueID string, state circuit.State) {
	r.BreakerState.WithLabelValues(venueID).Set(float64(state))
}
