// Package risk computes position sizes from account balance and stop
// distance. All functions are pure; a returned quantity of 0 means the
// entry must not be taken.
package risk

import (
	"errors"
	"math"

	"stratbot/internal/cfg"
)

// ErrInvalidStopDistance is returned when the stop price coincides with the
// entry price or an input is not a finite positive number. Entries rejected
// with it are logic errors and must not be retried.
var ErrInvalidStopDistance = errors.New("risk: invalid stop distance")

// ComputePositionSize returns the quantity such that losing the full stop
// distance costs balance*RiskPerTrade, clamped so that the position notional
// never exceeds balance*MaxPositionPct.
func ComputePositionSize(balance, entryPrice, stopPrice float64, rc cfg.RiskConfig) (float64, error) {
	if !isFinite(balance) || !isFinite(entryPrice) || !isFinite(stopPrice) {
		return 0, ErrInvalidStopDistance
	}
	if balance <= 0 || entryPrice <= 0 || stopPrice <= 0 {
		return 0, ErrInvalidStopDistance
	}

	stopDistance := math.Abs(entryPrice - stopPrice)
	if stopDistance == 0 {
		return 0, ErrInvalidStopDistance
	}

	riskAmount := balance * rc.RiskPerTrade
	quantity := riskAmount / stopDistance

	maxNotional := balance * rc.MaxPositionPct
	if quantity*entryPrice > maxNotional {
		quantity = maxNotional / entryPrice
	}

	if quantity <= 0 || !isFinite(quantity) {
		return 0, nil
	}
	return quantity, nil
}

// RoundStep floors a quantity to the given lot step. A zero step leaves the
// quantity untouched.
func RoundStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
