// Package perf aggregates closed trades and the equity curve into
// performance statistics. Compute is a pure function: the same inputs
// always produce the same Summary.
package perf

import (
	"math"

	"stratbot/internal/engine"
)

// Summary holds the aggregate statistics for one run. WinRate is a decimal
// fraction in [0,1], never a percentage. ProfitFactor is +Inf when there are
// gains and no losses.
type Summary struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	GrossProfit   float64 `json:"grossProfit"`
	GrossLoss     float64 `json:"grossLoss"`
	NetPnL        float64 `json:"netPnl"`
	ProfitFactor  float64 `json:"profitFactor"`
	MaxDrawdown   float64 `json:"maxDrawdown"`
	Expectancy    float64 `json:"expectancy"`
	Sharpe        float64 `json:"sharpe"`
	Sortino       float64 `json:"sortino"`
}

// Compute aggregates a trade list and equity curve into a Summary.
func Compute(trades []engine.Trade, equity []engine.EquityPoint) Summary {
	s := Summary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	var sumWins, sumLosses float64
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		s.NetPnL += t.PnL
		if t.PnL > 0 {
			s.WinningTrades++
			sumWins += t.PnL
		} else {
			s.LosingTrades++
			sumLosses += math.Abs(t.PnL)
		}
		notional := t.EntryPrice * t.Quantity
		if notional > 0 {
			returns = append(returns, t.PnL/notional)
		}
	}

	s.GrossProfit = sumWins
	s.GrossLoss = sumLosses
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)

	switch {
	case sumLosses > 0:
		s.ProfitFactor = sumWins / sumLosses
	case sumWins > 0:
		s.ProfitFactor = math.Inf(1)
	}

	var avgWin, avgLoss float64
	if s.WinningTrades > 0 {
		avgWin = sumWins / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		avgLoss = -sumLosses / float64(s.LosingTrades)
	}
	s.Expectancy = s.WinRate*avgWin + (1-s.WinRate)*avgLoss

	s.MaxDrawdown = MaxDrawdown(equity)
	s.Sharpe = sharpe(returns)
	s.Sortino = sortino(returns)

	return s
}

// MaxDrawdown is the largest peak-to-trough decline over the equity curve,
// expressed as a fraction of the peak.
func MaxDrawdown(equity []engine.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func sharpe(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std
}

// sortino penalizes only downside deviation: the denominator uses sub-zero
// returns exclusively.
func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var downVar float64
	var downs int
	for _, r := range returns {
		if r < 0 {
			downVar += r * r
			downs++
		}
	}
	if downs == 0 {
		return 0
	}
	downStd := math.Sqrt(downVar / float64(downs))
	if downStd == 0 {
		return 0
	}
	return mean / downStd
}

// meanStd returns the sample mean and standard deviation; both are 0 with
// fewer than 2 data points.
func meanStd(values []float64) (float64, float64) {
	if len(values) < 2 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)-1))
}
