package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity reconciliation.
// All methods are safe on a nil receiver so the service can run without them.
type Metrics struct {
	Outcomes         *prometheus.CounterVec
	AbsorbedGroups   prometheus.Histogram
	IdentifyDuration prometheus.Histogram
	LookupDuration   prometheus.Histogram
	LockScopeRetries prometheus.Counter
	PublishFailures  prometheus.Counter
	CacheLookups     *prometheus.CounterVec
}

// New registers the contact metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_identify_outcomes_total",
			Help: "Reconciliation outcomes by merge decision",
		}, []string{"outcome"}),
		AbsorbedGroups: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciler_merge_absorbed_groups",
			Help:    "Number of primaries absorbed by a single merge",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		IdentifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciler_identify_duration_seconds",
			Help:    "Duration of Identify operations including lock waits",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		LookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciler_lookup_duration_seconds",
			Help:    "Duration of Lookup operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		LockScopeRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_lock_scope_retries_total",
			Help: "Transactions retried because the resolved groups needed wider locks",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_event_publish_failures_total",
			Help: "Identity events that could not be published",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_view_cache_lookups_total",
			Help: "View cache lookups by result",
		}, []string{"result"}),
	}
}

// IncrementOutcome records one reconciliation outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}

// ObserveAbsorbed records how many primaries one merge absorbed.
func (m *Metrics) ObserveAbsorbed(n int) {
	if m == nil {
		return
	}
	m.AbsorbedGroups.Observe(float64(n))
}

// ObserveIdentify records the duration of an Identify call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIdentify(start time.Time) {
	if m == nil {
		return
	}
	m.IdentifyDuration.Observe(time.Since(start).Seconds())
}

// ObserveLookup records the duration of a Lookup call.
func (m *Metrics) ObserveLookup(start time.Time) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementLockScopeRetry() {
	if m == nil {
		return
	}
	m.LockScopeRetries.Inc()
}

func (m *Metrics) IncrementPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// IncrementCacheLookup records a view cache hit, miss or error.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
