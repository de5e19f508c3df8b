package lane

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricMovesTotal       = "lane_moves_total"
	MetricMoveWrites       = "lane_move_rank_writes"
	MetricLaneSizeCurrent  = "lane_size_current"
	MetricMoveErrorsTotal  = "lane_move_errors_total"
)

// Move error type constants for labeling.
const (
	ErrorTypeNotFound        = "not_found"
	ErrorTypeInvalidStatus   = "invalid_status"
	ErrorTypeInvalidPriority = "invalid_priority"
	ErrorTypeStorage         = "storage_error"
)

// Metrics contains Prometheus metrics for rank engine operations.
// All operations are thread-safe.
type Metrics struct {
	movesTotal *prometheus.CounterVec
	moveWrites prometheus.Histogram
	laneSize   *prometheus.GaugeVec
	moveErrors *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		movesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMovesTotal,
				Help: "Total number of applied moves by source and destination lane",
			},
			[]string{"from", "to"},
		),
		moveWrites: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricMoveWrites,
				Help:    "Number of rank assignments written per applied move",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		laneSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricLaneSizeCurrent,
				Help: "Current number of records per lane",
			},
			[]string{"status"},
		),
		moveErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMoveErrorsTotal,
				Help: "Total number of rejected moves by error type",
			},
			[]string{"error_type"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveMove records one applied move.
// from, to: the source and destination lanes (equal for in-lane reorders)
// writes: the number of rank assignments committed
func (m *Metrics) ObserveMove(from, to Status, writes int) {
	m.movesTotal.WithLabelValues(string(from), string(to)).Inc()
	m.moveWrites.Observe(float64(writes))
}

// SetLaneSizes updates the per-lane size gauges from a snapshot.
func (m *Metrics) SetLaneSizes(records []Client) {
	sizes := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		sizes[s] = 0
	}
	for _, c := range records {
		sizes[c.Status]++
	}
	for s, n := range sizes {
		m.laneSize.WithLabelValues(string(s)).Set(float64(n))
	}
}

// IncMoveErrors increments the rejected-move counter.
// errorType: one of the ErrorType constants
func (m *Metrics) IncMoveErrors(errorType string) {
	m.moveErrors.WithLabelValues(errorType).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.movesTotal,
		m.moveWrites,
		m.laneSize,
		m.moveErrors,
	}
}
