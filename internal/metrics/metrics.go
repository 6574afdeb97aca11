// Package metrics records engine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deal_engine"

// Audit results used as the "result" label.
const (
	ResultPass    = "pass"
	ResultFail    = "fail"
	ResultInvalid = "invalid"
)

// Recorder owns every engine metric. A nil *Recorder is valid and records nothing.
type Recorder struct {
	audits          *prometheus.CounterVec
	overallScore    prometheus.Histogram
	dedupHits       prometheus.Counter
	providerCalls   *prometheus.CounterVec
	reconcileTime   prometheus.Histogram
	syntheticUsed   prometheus.Counter
	overrides       prometheus.Counter
	rejections      prometheus.Counter
	matchEvaluation *prometheus.CounterVec
}

// New registers the engine metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	auto := promauto.With(reg)
	return &Recorder{
		audits: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "candidates_total",
			Help:      "Audited candidates by result.",
		}, []string{"result"}),
		overallScore: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "overall_score",
			Help:      "Distribution of overall audit scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		dedupHits: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "hits_total",
			Help:      "Candidates skipped as duplicates.",
		}),
		providerCalls: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "provider_calls_total",
			Help:      "Public-record provider calls by provider and outcome.",
		}, []string{"provider", "status"}),
		reconcileTime: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Wall time of a reconciliation including provider fan-out.",
			Buckets:   prometheus.DefBuckets,
		}),
		syntheticUsed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "synthetic_total",
			Help:      "Reconciliations that fell back to a synthetic reference record.",
		}),
		overrides: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "overrides_total",
			Help:      "Operator overrides of rejected candidates.",
		}),
		rejections: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Candidates recorded in the rejection ledger.",
		}),
		matchEvaluation: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "evaluations_total",
			Help:      "Buy-box evaluations by hard-filter outcome.",
		}, []string{"outcome"}),
	}
}

// Audit counts one audited candidate.
func (r *Recorder) Audit(result string, overall int) {
	if r == nil {
		return
	}
	r.audits.WithLabelValues(result).Inc()
	if result != ResultInvalid {
		r.overallScore.Observe(float64(overall))
	}
}

// DedupHit counts one skipped duplicate.
func (r *Recorder) DedupHit() {
	if r == nil {
		return
	}
	r.dedupHits.Inc()
}

// ProviderCall counts one provider outcome.
func (r *Recorder) ProviderCall(provider, status string) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, status).Inc()
}

// Reconciled observes one reconciliation.
func (r *Recorder) Reconciled(d time.Duration, synthetic bool) {
	if r == nil {
		return
	}
	r.reconcileTime.Observe(d.Seconds())
	if synthetic {
		r.syntheticUsed.Inc()
	}
}

// Rejected counts one ledger entry.
func (r *Recorder) Rejected() {
	if r == nil {
		return
	}
	r.rejections.Inc()
}

// Overridden counts one operator override.
func (r *Recorder) Overridden() {
	if r == nil {
		return
	}
	r.overrides.Inc()
}

// Matched counts one buy-box evaluation.
func (r *Recorder) Matched(passesHardFilters bool) {
	if r == nil {
		return
	}
	outcome := "excluded"
	if passesHardFilters {
		outcome = "eligible"
	}
	r.matchEvaluation.WithLabelValues(outcome).Inc()
}
