package signal

import (
	"testing"

	"stratbot/internal/engine"
)

func TestAdvisorThreshold(t *testing.T) {
	t.Parallel()

	a := NewAdvisor(ConfidenceScorer{}, 0.65)

	if _, ok := a.Advise("BTCUSDT", map[string]float64{"confidence": 0.6, "direction": 1}, 2); ok {
		t.Error("confidence below threshold must not advise")
	}

	advice, ok := a.Advise("BTCUSDT", map[string]float64{"confidence": 0.8, "direction": 1}, 2)
	if !ok {
		t.Fatal("expected an advice above threshold")
	}
	if advice.Side != engine.Long {
		t.Errorf("positive direction must go long, got %v", advice.Side)
	}
	if advice.Confidence != 0.8 || advice.Volatility != 2 {
		t.Errorf("unexpected advice: %+v", advice)
	}
}

func TestAdvisorDirection(t *testing.T) {
	t.Parallel()

	a := NewAdvisor(ConfidenceScorer{}, 0.5)

	advice, ok := a.Advise("BTCUSDT", map[string]float64{"confidence": 0.9, "direction": -1}, 2)
	if !ok || advice.Side != engine.Short {
		t.Errorf("negative direction must go short, got %+v ok=%v", advice, ok)
	}

	// no direction means no trade, however confident the score
	if _, ok := a.Advise("BTCUSDT", map[string]float64{"confidence": 0.99}, 2); ok {
		t.Error("missing direction must not advise")
	}
}

func TestConfidenceScorerClamps(t *testing.T) {
	t.Parallel()

	s := ConfidenceScorer{}
	tests := []struct{ in, out float64 }{
		{0.7, 0.7},
		{-0.5, 0},
		{1.5, 1},
		{0, 0},
	}
	for _, tt := range tests {
		if got := s.Score(map[string]float64{"confidence": tt.in}); got != tt.out {
			t.Errorf("Score(%v) = %v, expected %v", tt.in, got, tt.out)
		}
	}
	if got := s.Score(nil); got != 0 {
		t.Errorf("missing confidence must score 0, got %v", got)
	}
}
