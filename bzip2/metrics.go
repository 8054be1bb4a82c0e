package bzip2

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional operational counters described by
// SPEC_FULL.md §B.1, grounded in elliotnunn-BeHierarchic's use of
// prometheus/client_golang for library-level instrumentation. A
// Compressor/Decompressor with a nil *Metrics (the default) pays no cost
// beyond a handful of nil checks; NewMetrics registers the counters with a
// caller-supplied registry.
type Metrics struct {
	blocksTotal           *prometheus.CounterVec
	fallbackSortsTotal    prometheus.Counter
	workBudgetExhausted   prometheus.Counter
	bytesTotal            *prometheus.CounterVec
}

// NewMetrics constructs and registers the package's counters against reg.
// Set the Metrics field of a CompressConfig, DecompressConfig, WriterConfig
// or ReaderConfig to the result to have that stream record into it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		blocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bzip2core",
			Name:      "blocks_total",
			Help:      "Number of bzip2 blocks processed, by direction.",
		}, []string{"direction"}),
		fallbackSortsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bzip2core",
			Name:      "fallback_sorts_total",
			Help:      "Number of blocks whose BWT used the fallback sort.",
		}),
		workBudgetExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bzip2core",
			Name:      "work_budget_exhausted_total",
			Help:      "Number of blocks whose main sort aborted on work_factor and fell back.",
		}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bzip2core",
			Name:      "bytes_total",
			Help:      "Bytes processed, by direction (in/out).",
		}, []string{"direction"}),
	}
	reg.MustRegister(m.blocksTotal, m.fallbackSortsTotal, m.workBudgetExhausted, m.bytesTotal)
	return m
}

func (m *Metrics) observeBlock(direction string, usedFallback, budgetBlown bool) {
	if m == nil {
		return
	}
	m.blocksTotal.WithLabelValues(direction).Inc()
	if usedFallback {
		m.fallbackSortsTotal.Inc()
	}
	if budgetBlown {
		m.workBudgetExhausted.Inc()
	}
}

func (m *Metrics) observeBytes(direction string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.bytesTotal.WithLabelValues(direction).Add(float64(n))
}
