// Package backtest drives the trade lifecycle engine deterministically over
// a historical bar sequence: single-threaded, bars ascending by timestamp,
// decisions made at a bar's close realized at that close.
package backtest

import (
	"sort"

	"github.com/rs/zerolog/log"

	"stratbot/internal/cfg"
	"stratbot/internal/engine"
	"stratbot/internal/perf"
	"stratbot/internal/signal"
)

// SignalFunc produces an entry advice for a bar, or false for no entry.
// It may only use data available up to and including that bar's close.
type SignalFunc func(bar Bar) (signal.Advice, bool)

// Result is the structured record of one run, handed to reporting.
type Result struct {
	StrategyName   string                 `json:"strategyName"`
	Symbols        []string               `json:"symbols"`
	InitialBalance float64                `json:"initialBalance"`
	FinalBalance   float64                `json:"finalBalance"`
	Trades         []engine.Trade         `json:"trades"`
	EquityCurve    []engine.EquityPoint   `json:"equityCurve"`
	Metrics        perf.Summary           `json:"metrics"`
	SymbolStats    map[string]SymbolStats `json:"symbolStats,omitempty"`
	Halted         bool                   `json:"halted"`      // drawdown breaker tripped
	SkippedBars    int                    `json:"skippedBars"` // malformed bars ignored
}

// SymbolStats is the per-symbol slice of the run record.
type SymbolStats struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"winRate"`
	NetPnL  float64 `json:"netPnl"`
}

// Simulator runs one strategy over a bar sequence. One engine instance per
// symbol; the shared book enforces the global concurrency limit.
type Simulator struct {
	strategyName string
	risk         cfg.RiskConfig
	signalFn     SignalFunc

	book      *engine.Book
	engines   map[string]*engine.Engine
	lastPrice map[string]Bar

	initialBalance float64
	balance        float64
	peak           float64
	halted         bool

	trades  []engine.Trade
	equity  []engine.EquityPoint
	skipped int
}

// NewSimulator creates a simulator with the given starting balance.
func NewSimulator(strategyName string, rc cfg.RiskConfig, initialBalance float64, signalFn SignalFunc) *Simulator {
	return &Simulator{
		strategyName:   strategyName,
		risk:           rc,
		signalFn:       signalFn,
		book:           engine.NewBook(rc.MaxConcurrentPositions),
		engines:        make(map[string]*engine.Engine),
		lastPrice:      make(map[string]Bar),
		initialBalance: initialBalance,
		balance:        initialBalance,
		peak:           initialBalance,
	}
}

// Run iterates the bars in order and returns the run record. Bars must be
// sorted ascending by timestamp (the data loader guarantees this).
func (s *Simulator) Run(bars []Bar) Result {
	log.Info().
		Str("strategy", s.strategyName).
		Int("bars", len(bars)).
		Float64("balance", s.balance).
		Msg("starting backtest")

	for _, bar := range bars {
		s.step(bar)
	}

	s.closeAll(engine.ExitEndOfData)

	return s.result()
}

func (s *Simulator) step(bar Bar) {
	if !bar.Valid() {
		s.skipped++
		log.Warn().
			Str("symbol", bar.Symbol).
			Time("ts", bar.Ts).
			Msg("skipping bar with non-finite prices")
		return
	}
	s.lastPrice[bar.Symbol] = bar

	eng := s.engineFor(bar.Symbol)
	if trade := eng.OnPriceUpdate(bar.Close, bar.Ts); trade != nil {
		s.record(*trade)
	}

	// Global drawdown circuit breaker: once tripped, all positions are
	// force-closed and no further entries happen for the rest of the run.
	if !s.halted && s.drawdown() >= s.risk.MaxDrawdownLimit {
		log.Warn().
			Float64("drawdown", s.drawdown()).
			Float64("limit", s.risk.MaxDrawdownLimit).
			Msg("max drawdown reached, halting new entries")
		s.closeAll(engine.ExitDrawdownStop)
		s.halted = true
	}
	if s.halted || eng.Position() != nil {
		return
	}

	advice, ok := s.signalFn(bar)
	if !ok {
		return
	}

	_, err := eng.Open(engine.OpenRequest{
		Side:       advice.Side,
		Price:      bar.Close,
		Balance:    s.balance,
		Volatility: advice.Volatility,
		Time:       bar.Ts,
	})
	if err != nil {
		log.Debug().
			Err(err).
			Str("symbol", bar.Symbol).
			Time("ts", bar.Ts).
			Msg("entry rejected")
	}
}

func (s *Simulator) engineFor(symbol string) *engine.Engine {
	eng, ok := s.engines[symbol]
	if !ok {
		eng = engine.New(symbol, s.risk, s.book)
		s.engines[symbol] = eng
	}
	return eng
}

func (s *Simulator) record(trade engine.Trade) {
	s.balance += trade.PnL
	if s.balance > s.peak {
		s.peak = s.balance
	}
	s.trades = append(s.trades, trade)
	s.equity = append(s.equity, engine.EquityPoint{Ts: trade.ExitTime, Equity: s.balance})
}

func (s *Simulator) drawdown() float64 {
	if s.peak <= 0 {
		return 0
	}
	return (s.peak - s.balance) / s.peak
}

func (s *Simulator) closeAll(reason engine.ExitReason) {
	// close in symbol order so the trade sequence, and every metric derived
	// from it, is identical between runs
	for _, symbol := range s.symbols() {
		eng := s.engines[symbol]
		pos := eng.Position()
		if pos == nil {
			continue
		}
		bar, ok := s.lastPrice[symbol]
		price := pos.EntryPrice // no price seen yet, exit flat
		ts := pos.EntryTime
		if ok {
			price = bar.Close
			ts = bar.Ts
		}
		if trade := eng.ForceClose(reason, price, ts); trade != nil {
			s.record(*trade)
		}
	}
}

func (s *Simulator) symbols() []string {
	symbols := make([]string, 0, len(s.engines))
	for symbol := range s.engines {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (s *Simulator) result() Result {
	stats := make(map[string]SymbolStats, len(s.engines))
	for _, trade := range s.trades {
		st := stats[trade.Symbol]
		st.Trades++
		if trade.PnL > 0 {
			st.Wins++
		}
		st.NetPnL += trade.PnL
		stats[trade.Symbol] = st
	}
	for symbol, st := range stats {
		st.WinRate = float64(st.Wins) / float64(st.Trades)
		stats[symbol] = st
	}

	return Result{
		StrategyName:   s.strategyName,
		Symbols:        s.symbols(),
		InitialBalance: s.initialBalance,
		FinalBalance:   s.balance,
		Trades:         s.trades,
		EquityCurve:    s.equity,
		Metrics:        perf.Compute(s.trades, s.equity),
		SymbolStats:    stats,
		Halted:         s.halted,
		SkippedBars:    s.skipped,
	}
}
