package lane

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gather collects all metric families from a registry keyed by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestMetricsRegister(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Double registration must fail.
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("registering with a second registry should succeed, got %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestMetricsObserveMove(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	m.ObserveMove(StatusBacklog, StatusInProgress, 3)
	m.ObserveMove(StatusBacklog, StatusBacklog, 2)

	families := gather(t, reg)
	moves, ok := families[MetricMovesTotal]
	if !ok {
		t.Fatalf("metric %s not gathered", MetricMovesTotal)
	}
	if len(moves.GetMetric()) != 2 {
		t.Errorf("expected 2 label combinations, got %d", len(moves.GetMetric()))
	}
	for _, metric := range moves.GetMetric() {
		if metric.GetCounter().GetValue() != 1 {
			t.Errorf("expected counter value 1, got %v", metric.GetCounter().GetValue())
		}
	}

	writes, ok := families[MetricMoveWrites]
	if !ok {
		t.Fatalf("metric %s not gathered", MetricMoveWrites)
	}
	if got := writes.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("expected 2 histogram samples, got %d", got)
	}
}

func TestMetricsSetLaneSizes(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	m.SetLaneSizes(board(map[Status][]string{
		StatusBacklog:    {"a", "b"},
		StatusInProgress: {"c"},
	}))

	families := gather(t, reg)
	sizes, ok := families[MetricLaneSizeCurrent]
	if !ok {
		t.Fatalf("metric %s not gathered", MetricLaneSizeCurrent)
	}
	// All three lanes get a gauge, including the empty one.
	if len(sizes.GetMetric()) != len(Statuses) {
		t.Fatalf("expected %d gauges, got %d", len(Statuses), len(sizes.GetMetric()))
	}
	want := map[string]float64{"backlog": 2, "in-progress": 1, "complete": 0}
	for _, metric := range sizes.GetMetric() {
		lane := metric.GetLabel()[0].GetValue()
		if got := metric.GetGauge().GetValue(); got != want[lane] {
			t.Errorf("lane %s: expected size %v, got %v", lane, want[lane], got)
		}
	}
}
