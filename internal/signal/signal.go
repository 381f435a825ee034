// Package signal defines the scoring oracle consumed by the trading loops.
// Model internals and persistence live behind the Scorer interface; the
// engine only ever sees a directional advice with a confidence in [0,1].
package signal

import (
	"stratbot/internal/engine"
)

// Scorer turns opaque feature fields into a confidence score in [0,1].
// Implementations may wrap a persisted model, a remote service or a
// heuristic; callers treat them interchangeably.
type Scorer interface {
	Score(features map[string]float64) float64
}

// Advice is a directional entry suggestion for one symbol.
type Advice struct {
	Symbol     string
	Side       engine.Side
	Confidence float64
	// Volatility is the reference distance stop/target multipliers apply
	// to; zero lets the engine fall back to a price fraction.
	Volatility float64
}

// Advisor gates entries on a scorer and a confidence threshold.
type Advisor struct {
	scorer    Scorer
	threshold float64
}

func NewAdvisor(s Scorer, threshold float64) *Advisor {
	return &Advisor{scorer: s, threshold: threshold}
}

// Advise scores the features and returns an entry advice when the
// confidence clears the threshold. The "direction" feature (>0 long,
// <0 short) picks the side; absent or zero direction yields no advice.
func (a *Advisor) Advise(symbol string, features map[string]float64, volatility float64) (Advice, bool) {
	confidence := a.scorer.Score(features)
	if confidence < a.threshold {
		return Advice{}, false
	}

	side := engine.Side(0)
	switch dir := features["direction"]; {
	case dir > 0:
		side = engine.Long
	case dir < 0:
		side = engine.Short
	default:
		return Advice{}, false
	}

	return Advice{
		Symbol:     symbol,
		Side:       side,
		Confidence: confidence,
		Volatility: volatility,
	}, true
}

// ConfidenceScorer passes through a precomputed "confidence" feature, the
// fallback used when no model is configured. Bars arrive already enriched
// with a confidence value from the upstream scoring pipeline.
type ConfidenceScorer struct{}

func (ConfidenceScorer) Score(features map[string]float64) float64 {
	c := features["confidence"]
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
