package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	m.OrdersTotal.Inc()
	m.OrdersTotal.Inc()
	if got := testutil.ToFloat64(m.OrdersTotal); got != 2 {
		t.Errorf("expected orders_total 2, got %v", got)
	}

	m.ActivePositions.Set(3)
	if got := testutil.ToFloat64(m.ActivePositions); got != 3 {
		t.Errorf("expected active_positions 3, got %v", got)
	}

	m.PositionsClosed.WithLabelValues("take_profit").Inc()
	m.PositionsClosed.WithLabelValues("stop_loss").Inc()
	m.PositionsClosed.WithLabelValues("take_profit").Inc()
	if got := testutil.ToFloat64(m.PositionsClosed.WithLabelValues("take_profit")); got != 2 {
		t.Errorf("expected 2 take_profit closes, got %v", got)
	}

	m.DrawdownFraction.Set(0.12)
	if got := testutil.ToFloat64(m.DrawdownFraction); got != 0.12 {
		t.Errorf("expected drawdown 0.12, got %v", got)
	}
}

func TestIsolatedRegistries(t *testing.T) {
	t.Parallel()

	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.ErrorsTotal.Inc()
	if got := testutil.ToFloat64(b.ErrorsTotal); got != 0 {
		t.Errorf("registries must be isolated, got %v", got)
	}
}
