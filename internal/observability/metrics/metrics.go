package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking engine.
type SchedulingMetrics struct {
	operations *prometheus.CounterVec
	conflicts  prometheus.Counter
	retries    *prometheus.CounterVec
	slotSearch prometheus.Histogram
	slotCache  *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitch",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Scheduling operations by name and outcome",
		}, []string{"op", "outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitch",
			Subsystem: "scheduling",
			Name:      "overlap_rejections_total",
			Help:      "Writes rejected because the range overlapped an existing booking",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitch",
			Subsystem: "scheduling",
			Name:      "tx_retries_total",
			Help:      "Write transactions retried after a deadlock or lock wait timeout",
		}, []string{"op"}),
		slotSearch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pitch",
			Subsystem: "scheduling",
			Name:      "slot_search_seconds",
			Help:      "Latency of available slot searches",
			Buckets:   prometheus.DefBuckets,
		}),
		slotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitch",
			Subsystem: "scheduling",
			Name:      "slot_cache_total",
			Help:      "Slot cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.conflicts, m.retries, m.slotSearch, m.slotCache)
	return m
}

func (m *SchedulingMetrics) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *SchedulingMetrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *SchedulingMetrics) ObserveSlotSearch(seconds float64) {
	if m == nil {
		return
	}
	m.slotSearch.Observe(seconds)
}

func (m *SchedulingMetrics) ObserveSlotCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.slotCache.WithLabelValues(result).Inc()
}
