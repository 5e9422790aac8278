package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcomes.
const (
	LookupOK      = "ok"
	LookupEmpty   = "empty"
	LookupTimeout = "timeout"
	LookupError   = "error"
	LookupSkipped = "skipped"
)

// Recorder publishes engine metrics on its own registry. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	lookups        *prometheus.CounterVec
	cache          *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	selectDuration prometheus.Histogram
	confidence     prometheus.Gauge
	candidates     prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polysignal",
				Name:      "sentiment_lookups_total",
				Help:      "Sentiment lookups by outcome",
			},
			[]string{"outcome"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polysignal",
				Name:      "sentiment_cache_requests_total",
				Help:      "Sentiment cache requests by tier and result",
			},
			[]string{"tier", "result"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polysignal",
				Name:      "decisions_total",
				Help:      "Decisions by kind and reason",
			},
			[]string{"kind", "reason"},
		),
		selectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polysignal",
			Name:      "selection_duration_seconds",
			Help:      "Wall time of one market selection",
			Buckets:   prometheus.DefBuckets,
		}),
		confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "polysignal",
			Name:      "selected_confidence",
			Help:      "Confidence of the most recently selected market",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "polysignal",
			Name:      "candidates",
			Help:      "Candidates considered in the most recent selection",
		}),
	}
	r.registry.MustRegister(r.lookups, r.cache, r.decisions, r.selectDuration, r.confidence, r.candidates)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordLookup(outcome string) {
	if r == nil {
		return
	}
	r.lookups.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordCache(tier string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(tier, result).Inc()
}

func (r *Recorder) RecordSelected(confidence float64, candidates int, seconds float64) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues("selected", "").Inc()
	r.confidence.Set(confidence)
	r.candidates.Set(float64(candidates))
	r.selectDuration.Observe(seconds)
}

func (r *Recorder) RecordNoSelection(reason string, candidates int, seconds float64) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues("no_selection", reason).Inc()
	r.candidates.Set(float64(candidates))
	r.selectDuration.Observe(seconds)
}
