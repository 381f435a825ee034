// Package engine implements the trade lifecycle state machine: one position
// per engine instance, moving Flat -> Open -> Closed with stop-loss,
// take-profit and trailing-stop transitions along the way.
package engine

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stratbot/internal/cfg"
	"stratbot/internal/risk"
)

var (
	// ErrNoCapacity means the concurrent-position limit is reached.
	ErrNoCapacity = errors.New("engine: no position capacity")
	// ErrZeroSize means the risk manager sized the entry to zero.
	ErrZeroSize = errors.New("engine: computed position size is zero")
	// ErrNotFlat means the engine already owns an open position.
	ErrNotFlat = errors.New("engine: position already open")
	// ErrInvalidSide means the entry request named no direction.
	ErrInvalidSide = errors.New("engine: invalid side")
)

// OpenRequest describes an entry. Volatility is the reference distance the
// configured multipliers are applied to; explicit StopLoss/TakeProfit values
// override the derived ones.
type OpenRequest struct {
	ID         string // optional; exchange order id in live use
	Side       Side
	Price      float64
	Balance    float64
	Volatility float64
	StopLoss   float64
	TakeProfit float64
	// Quantity overrides risk-based sizing when nonzero, used for live
	// fills where the exchange reports the executed quantity.
	Quantity float64
	Time     time.Time
}

// Engine tracks at most one position for a symbol. It is not safe for
// concurrent use; live callers serialize access through the executor.
type Engine struct {
	symbol string
	risk   cfg.RiskConfig
	book   *Book
	pos    *Position
}

func New(symbol string, rc cfg.RiskConfig, book *Book) *Engine {
	return &Engine{symbol: symbol, risk: rc, book: book}
}

// Position returns the currently open position, or nil when flat.
func (e *Engine) Position() *Position {
	if e.pos != nil && e.pos.Status == StatusOpen {
		return e.pos
	}
	return nil
}

// Open sizes the entry via the risk manager, derives stop and target from
// the configured distance multipliers, reserves a book slot and transitions
// Flat -> Open.
func (e *Engine) Open(req OpenRequest) (*Position, error) {
	if e.Position() != nil {
		return nil, ErrNotFlat
	}
	if req.Side != Long && req.Side != Short {
		return nil, ErrInvalidSide
	}

	ref := req.Volatility
	if ref <= 0 || math.IsNaN(ref) || math.IsInf(ref, 0) {
		// fall back to a fraction of price when no volatility reference exists
		ref = req.Price * 0.01
	}

	stop := req.StopLoss
	if stop == 0 {
		stop = req.Price - req.Side.Sign()*ref*e.risk.StopDistanceMult
	}
	target := req.TakeProfit
	if target == 0 {
		target = req.Price + req.Side.Sign()*ref*e.risk.TargetDistanceMult
	}

	qty := req.Quantity
	if qty == 0 {
		var err error
		qty, err = risk.ComputePositionSize(req.Balance, req.Price, stop, e.risk)
		if err != nil {
			return nil, err
		}
		if qty == 0 {
			return nil, ErrZeroSize
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	p := &Position{
		ID:           id,
		Symbol:       e.symbol,
		Side:         req.Side,
		EntryPrice:   req.Price,
		Quantity:     qty,
		StopLoss:     stop,
		TakeProfit:   target,
		TrailingStop: stop,
		Excursion:    req.Price,
		Status:       StatusOpen,
		EntryTime:    req.Time,
	}

	if err := e.book.Reserve(p); err != nil {
		return nil, err
	}
	e.pos = p

	log.Debug().
		Str("position_id", p.ID).
		Str("symbol", p.Symbol).
		Str("side", p.Side.String()).
		Float64("price", p.EntryPrice).
		Float64("qty", p.Quantity).
		Float64("stop_loss", p.StopLoss).
		Float64("take_profit", p.TakeProfit).
		Msg("position opened")

	return p, nil
}

// Adopt installs an externally created position (exchange-discovered or
// reloaded from the recovery store) as the engine's open position.
func (e *Engine) Adopt(p *Position) error {
	if e.Position() != nil {
		return ErrNotFlat
	}
	if err := e.book.Reserve(p); err != nil {
		return err
	}
	e.pos = p
	return nil
}

// Evaluate updates the favorable-excursion price and the trailing stop, then
// reports whether an exit condition is touched at the given price. It does
// not close the position; backtest callers use OnPriceUpdate, live callers
// close only after the exchange confirms.
func (e *Engine) Evaluate(price float64) (ExitReason, bool) {
	p := e.Position()
	if p == nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return "", false
	}

	sign := p.Side.Sign()
	if (price-p.Excursion)*sign > 0 {
		p.Excursion = price
	}

	// Candidate trailing stop follows the excursion price; it is applied
	// only when it moves the stop in the favorable direction, which keeps
	// the trailing stop monotone over the position's lifetime.
	if p.TrailingStop != 0 {
		candidate := p.Excursion * (1 - sign*e.risk.TrailingStopPct)
		if (candidate-p.TrailingStop)*sign > 0 {
			p.TrailingStop = candidate
		}
	}

	tpHit := p.TakeProfit != 0 && (price-p.TakeProfit)*sign >= 0
	trailHit := p.TrailingStop != 0 && (p.TrailingStop-price)*sign >= 0

	// The trailing stop starts at the stop-loss and only moves favorably,
	// so any stop-loss touch is also a trailing touch.
	switch {
	case tpHit && trailHit:
		// profit and stop breached in the same update: the stop side wins
		return e.stopReason(p), true
	case tpHit:
		return ExitTakeProfit, true
	case trailHit:
		return e.stopReason(p), true
	default:
		return "", false
	}
}

func (e *Engine) stopReason(p *Position) ExitReason {
	if p.TrailingStop != p.StopLoss {
		return ExitTrailingStop
	}
	return ExitStopLoss
}

// OnPriceUpdate evaluates exit conditions and closes the position when one
// triggers. Returns the closed Trade, or nil while the position stays open.
func (e *Engine) OnPriceUpdate(price float64, ts time.Time) *Trade {
	reason, exit := e.Evaluate(price)
	if !exit {
		return nil
	}
	return e.Close(reason, price, ts)
}

// Close transitions Open -> Closed with the given reason, computes realized
// PnL and releases the book slot. Closing an already-closed or absent
// position is a no-op returning nil, so the transition happens exactly once.
func (e *Engine) Close(reason ExitReason, price float64, ts time.Time) *Trade {
	p := e.Position()
	if p == nil {
		return nil
	}

	p.Status = StatusClosed
	p.ExitReason = reason
	p.ExitPrice = price
	p.ExitTime = ts
	p.RealizedPnL = (price - p.EntryPrice) * p.Quantity * p.Side.Sign()

	e.book.Release(p.ID)
	e.pos = nil

	log.Debug().
		Str("position_id", p.ID).
		Str("symbol", p.Symbol).
		Str("side", p.Side.String()).
		Str("reason", string(reason)).
		Float64("entry", p.EntryPrice).
		Float64("exit", price).
		Float64("pnl", p.RealizedPnL).
		Msg("position closed")

	return &Trade{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		Quantity:   p.Quantity,
		PnL:        p.RealizedPnL,
		ExitReason: reason,
		EntryTime:  p.EntryTime,
		ExitTime:   ts,
	}
}

// ForceClose closes the open position regardless of price conditions, used
// by the drawdown circuit breaker and manual shutdown. Always succeeds; on a
// flat engine it returns nil.
func (e *Engine) ForceClose(reason ExitReason, price float64, ts time.Time) *Trade {
	return e.Close(reason, price, ts)
}
