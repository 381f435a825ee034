package risk

import (
	"errors"
	"math"
	"testing"

	"stratbot/internal/cfg"
)

func TestComputePositionSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		balance  float64
		entry    float64
		stop     float64
		config   cfg.RiskConfig
		expected float64
		wantErr  error
	}{
		{
			name:    "basic long sizing",
			balance: 10000,
			entry:   100,
			stop:    98,
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 1.0},
			// risk amount 200 over a stop distance of 2
			expected: 100,
		},
		{
			name:    "short sizing uses absolute distance",
			balance: 10000,
			entry:   100,
			stop:    102,
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 1.0},
			expected: 100,
		},
		{
			name:    "clamped by max notional",
			balance: 10000,
			entry:   100,
			stop:    99.9,
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 0.25},
			// unclamped would be 2000 units = 200k notional
			expected: 25,
		},
		{
			name:    "stop equals entry",
			balance: 10000,
			entry:   100,
			stop:    100,
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 1.0},
			wantErr: ErrInvalidStopDistance,
		},
		{
			name:    "negative balance",
			balance: -1,
			entry:   100,
			stop:    98,
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 1.0},
			wantErr: ErrInvalidStopDistance,
		},
		{
			name:    "NaN entry",
			balance: 10000,
			entry:   math.NaN(),
			stop:    98,
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 1.0},
			wantErr: ErrInvalidStopDistance,
		},
		{
			name:    "infinite stop",
			balance: 10000,
			entry:   100,
			stop:    math.Inf(1),
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 1.0},
			wantErr: ErrInvalidStopDistance,
		},
		{
			name:    "zero max position pct degenerates to zero size",
			balance: 10000,
			entry:   100,
			stop:    98,
			config:  cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 0},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputePositionSize(tt.balance, tt.entry, tt.stop, tt.config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected quantity %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestComputePositionSizeScalesWithBalance(t *testing.T) {
	t.Parallel()

	config := cfg.RiskConfig{RiskPerTrade: 0.02, MaxPositionPct: 1.0}
	small, err := ComputePositionSize(10000, 100, 98, config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	large, err := ComputePositionSize(20000, 100, 98, config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(large-2*small) > 1e-9 {
		t.Errorf("doubling balance should double size: %v vs %v", small, large)
	}
}

func TestRoundStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		qty, step, expected float64
	}{
		{1.2345, 0.01, 1.23},
		{1.2345, 0.1, 1.2},
		{100, 1, 100},
		{0.9, 1, 0},
		{1.2345, 0, 1.2345}, // zero step is a no-op
	}
	for _, tt := range tests {
		if got := RoundStep(tt.qty, tt.step); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("RoundStep(%v, %v) = %v, expected %v", tt.qty, tt.step, got, tt.expected)
		}
	}
}
