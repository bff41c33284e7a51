package rbac

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Prometheus collectors for gate decisions and the
// permission-set cache. A nil *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	cache     *prometheus.CounterVec
	loads     prometheus.Histogram
}

// NewMetrics registers the RBAC collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketslave_rbac_decisions_total",
		Help: "Gate decisions partitioned by outcome.",
	}, []string{"state"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketslave_rbac_cache_lookups_total",
		Help: "Permission-set cache lookups partitioned by tier and result.",
	}, []string{"tier", "result"})
	loads := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticketslave_rbac_permission_load_seconds",
		Help:    "Duration of permission-set loads from the store.",
		Buckets: prometheus.DefBuckets,
	})
	if registerer != nil {
		registerer.MustRegister(decisions, cache, loads)
	}
	return &Metrics{decisions: decisions, cache: cache, loads: loads}
}

// ObserveDecision counts a gate outcome.
func (m *Metrics) ObserveDecision(state State) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) cacheHit(tier string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(tier, "hit").Inc()
}

func (m *Metrics) cacheMiss(tier string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(tier, "miss").Inc()
}

func (m *Metrics) observeLoad(seconds float64) {
	if m == nil {
		return
	}
	m.loads.Observe(seconds)
}
