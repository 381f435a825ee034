// Package live drives the trade lifecycle engine against a real exchange:
// signal-driven entries, per-tick exit checks and periodic reconciliation
// against exchange-reported truth.
//
// All position mutations happen on the executor's single run loop, so no
// two cycles can pass the capacity check concurrently. Network calls block
// the loop but never hold the position book's lock.
package live

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"stratbot/internal/cfg"
	"stratbot/internal/engine"
	"stratbot/internal/exchange"
	"stratbot/internal/metrics"
	"stratbot/internal/retry"
	"stratbot/internal/risk"
	"stratbot/internal/signal"
	"stratbot/internal/storage"
)

// Executor owns the local position store for the live path.
type Executor struct {
	config cfg.Settings
	conn   exchange.Connector
	store  *storage.Store // optional persistence
	m      *metrics.Metrics
	retry  retry.Policy

	book      *engine.Book
	engines   map[string]*engine.Engine
	lastPrice map[string]float64

	balance float64
	peak    float64
	seeded  bool // peak baseline taken from the first exchange snapshot
	halted  bool

	trades []engine.Trade
	equity []engine.EquityPoint
}

func New(c cfg.Settings, conn exchange.Connector, m *metrics.Metrics, store *storage.Store) *Executor {
	return &Executor{
		config: c,
		conn:   conn,
		store:  store,
		m:      m,
		retry: retry.Policy{
			MaxAttempts: c.MaxOrderRetries,
			BaseDelay:   c.RetryBaseDelay,
			MaxDelay:    c.RetryMaxDelay,
		},
		book:      engine.NewBook(c.Risk.MaxConcurrentPositions),
		engines:   make(map[string]*engine.Engine),
		lastPrice: make(map[string]float64),
		balance:   c.InitialBalance,
		peak:      c.InitialBalance,
	}
}

// Trades returns the closed trades recorded so far.
func (x *Executor) Trades() []engine.Trade { return x.trades }

// EquityCurve returns the equity points recorded so far.
func (x *Executor) EquityCurve() []engine.EquityPoint { return x.equity }

// Run restores persisted positions, reconciles once, then serves the
// trading cycles until the context is cancelled. It is the single writer
// for all position state.
func (x *Executor) Run(ctx context.Context, signals <-chan signal.Advice, ticks <-chan exchange.PriceTick) error {
	if err := x.restore(); err != nil {
		return err
	}
	x.reconcile(ctx)

	reconcileTicker := time.NewTicker(x.config.ReconcileInterval)
	defer reconcileTicker.Stop()
	pollTicker := time.NewTicker(x.config.CycleInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			x.shutdown()
			return ctx.Err()
		case <-reconcileTicker.C:
			x.reconcile(ctx)
		case advice := <-signals:
			x.onSignal(ctx, advice)
		case tick := <-ticks:
			x.m.TicksReceived.Inc()
			x.onPrice(ctx, tick.Symbol, tick.Price, tick.Ts)
		case <-pollTicker.C:
			x.pollPrices(ctx)
		}
	}
}

// restore reloads still-open positions from the recovery store before the
// first cycle runs.
func (x *Executor) restore() error {
	if x.store == nil {
		return nil
	}

	positions, err := x.store.LoadOpenPositions()
	if err != nil {
		return err
	}
	for _, p := range positions {
		if err := x.engineFor(p.Symbol).Adopt(p); err != nil {
			log.Warn().
				Err(err).
				Str("position_id", p.ID).
				Str("symbol", p.Symbol).
				Msg("could not restore position")
			continue
		}
		log.Info().
			Str("position_id", p.ID).
			Str("symbol", p.Symbol).
			Str("side", p.Side.String()).
			Msg("restored open position")
	}
	x.m.ActivePositions.Set(float64(x.book.Count()))
	return nil
}

func (x *Executor) engineFor(symbol string) *engine.Engine {
	eng, ok := x.engines[symbol]
	if !ok {
		eng = engine.New(symbol, x.config.Risk, x.book)
		x.engines[symbol] = eng
	}
	return eng
}

// onSignal runs one entry cycle: reconcile for ground truth, apply risk
// checks, submit the order, and only then track the position locally keyed
// by the exchange order id.
func (x *Executor) onSignal(ctx context.Context, advice signal.Advice) {
	x.reconcile(ctx)

	if x.halted {
		log.Warn().Str("symbol", advice.Symbol).Msg("entry skipped, drawdown halt in effect")
		return
	}

	eng := x.engineFor(advice.Symbol)
	if eng.Position() != nil {
		log.Debug().Str("symbol", advice.Symbol).Msg("entry skipped, position already open")
		return
	}
	if x.book.Count() >= x.book.Limit() {
		log.Warn().
			Str("symbol", advice.Symbol).
			Int("open", x.book.Count()).
			Int("limit", x.book.Limit()).
			Msg("entry rejected: no capacity")
		return
	}

	price, ok := x.priceFor(ctx, advice.Symbol)
	if !ok {
		return
	}

	ref := advice.Volatility
	if ref <= 0 {
		ref = price * 0.01
	}
	stop := price - advice.Side.Sign()*ref*x.config.Risk.StopDistanceMult

	qty, err := risk.ComputePositionSize(x.balance, price, stop, x.config.Risk)
	if err != nil || qty == 0 {
		log.Warn().
			Err(err).
			Str("symbol", advice.Symbol).
			Float64("balance", x.balance).
			Msg("entry rejected by risk manager")
		return
	}

	orderID := ""
	fillPrice := price
	fillQty := qty

	if x.config.DryRun {
		log.Info().Str("symbol", advice.Symbol).Float64("qty", qty).Msg("dry run, order not submitted")
	} else {
		req := exchange.OrderRequest{
			Symbol:    advice.Symbol,
			Side:      orderSide(advice.Side),
			TradeSide: exchange.TradeSideOpen,
			Quantity:  qty,
			OrderType: exchange.OrderTypeMarket,
		}
		result, err := x.submit(ctx, req)
		if err != nil {
			x.logOrderFailure(advice.Symbol, "", "entry order failed", err)
			return
		}
		orderID = result.OrderID
		if result.AvgFillPrice > 0 {
			fillPrice = result.AvgFillPrice
		}
		if result.FilledQuantity > 0 {
			fillQty = result.FilledQuantity
		}
	}

	pos, err := eng.Open(engine.OpenRequest{
		ID:         orderID,
		Side:       advice.Side,
		Price:      fillPrice,
		Balance:    x.balance,
		Volatility: advice.Volatility,
		Quantity:   fillQty,
		Time:       time.Now(),
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("symbol", advice.Symbol).
			Str("order_id", orderID).
			Msg("order filled but local open failed")
		return
	}

	x.persist(pos)
	x.m.OrdersTotal.Inc()
	x.m.ActivePositions.Set(float64(x.book.Count()))

	log.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("side", pos.Side.String()).
		Float64("price", pos.EntryPrice).
		Float64("qty", pos.Quantity).
		Float64("confidence", advice.Confidence).
		Msg("position opened")
}

// onPrice feeds one price observation to the symbol's engine and submits a
// closing order when an exit condition is touched. The position is marked
// closed locally only after the exchange confirms the close.
func (x *Executor) onPrice(ctx context.Context, symbol string, price float64, ts time.Time) {
	x.lastPrice[symbol] = price

	eng, ok := x.engines[symbol]
	if !ok {
		return
	}
	pos := eng.Position()
	if pos == nil {
		return
	}

	reason, exit := eng.Evaluate(price)
	if !exit {
		x.persist(pos) // trailing stop may have moved
		return
	}

	exitPrice := price
	if !x.config.DryRun {
		req := exchange.OrderRequest{
			Symbol:    symbol,
			Side:      orderSide(opposite(pos.Side)),
			TradeSide: exchange.TradeSideClose,
			Quantity:  pos.Quantity,
			OrderType: exchange.OrderTypeMarket,
		}
		result, err := x.submit(ctx, req)
		if err != nil {
			// Position stays open; the next price update retries the exit.
			x.logOrderFailure(symbol, pos.ID, "closing order failed", err)
			return
		}
		if result.AvgFillPrice > 0 {
			exitPrice = result.AvgFillPrice
		}
	}

	if trade := eng.Close(reason, exitPrice, ts); trade != nil {
		x.recordClose(*trade)
	}
}

// pollPrices is the fallback exit check when the price stream is quiet.
func (x *Executor) pollPrices(ctx context.Context) {
	for symbol, eng := range x.engines {
		if eng.Position() == nil {
			continue
		}
		price, err := x.conn.LastPrice(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("price poll failed")
			x.m.ErrorsTotal.Inc()
			continue
		}
		x.onPrice(ctx, symbol, price, time.Now())
	}
}

// reconcile fetches the exchange snapshot and corrects local state; the
// exchange wins every disagreement.
func (x *Executor) reconcile(ctx context.Context) {
	var snap exchange.Snapshot
	err := x.retry.Do(ctx, func(ctx context.Context) error {
		s, err := x.conn.FetchSnapshot(ctx)
		if err != nil {
			return err
		}
		snap = s
		return nil
	}, exchange.IsRetryable)
	if err != nil {
		log.Error().Err(err).Msg("reconciliation cycle failed")
		x.m.CycleFailures.Inc()
		return
	}

	if snap.Balance > 0 {
		x.balance = snap.Balance
		if !x.seeded {
			// The configured balance is only a placeholder until the exchange
			// reports the real one; the first reconciled balance becomes the
			// drawdown baseline so a lower real balance cannot trip the
			// breaker before any trade.
			x.peak = x.balance
			x.seeded = true
		} else if x.balance > x.peak {
			x.peak = x.balance
		}
		x.m.EquityBalance.Set(x.balance)
	}

	diff := Reconcile(x.book.Open(), snap)
	if !diff.Clean() {
		log.Warn().Str("diff", diff.String()).Msg("reconciliation mismatch, exchange wins")
	}

	for _, p := range diff.Missing {
		// Fill price unknown for external closes; last known price is the
		// best available estimate.
		price, ok := x.lastPrice[p.Symbol]
		if !ok {
			price = p.EntryPrice
		}
		x.m.ReconcileMismatch.Inc()
		if trade := x.engineFor(p.Symbol).ForceClose(engine.ExitClosedExternally, price, time.Now()); trade != nil {
			log.Warn().
				Str("position_id", trade.ID).
				Str("symbol", trade.Symbol).
				Float64("assumed_price", price).
				Msg("position closed externally")
			x.recordClose(*trade)
		}
	}

	for _, m := range diff.Mismatched {
		x.m.ReconcileMismatch.Inc()
		log.Warn().
			Str("position_id", m.Position.ID).
			Str("symbol", m.Position.Symbol).
			Float64("local_qty", m.LocalQuantity).
			Float64("exchange_qty", m.ExchangeQuantity).
			Msg("quantity mismatch corrected from exchange")
		m.Position.Quantity = m.ExchangeQuantity
		x.persist(m.Position)
	}

	for _, p := range diff.Adopted {
		x.m.ReconcileMismatch.Inc()
		if err := x.engineFor(p.Symbol).Adopt(p); err != nil {
			log.Error().
				Err(err).
				Str("position_id", p.ID).
				Str("symbol", p.Symbol).
				Msg("could not adopt exchange position, manual intervention required")
			continue
		}
		x.persist(p)
		log.Warn().
			Str("position_id", p.ID).
			Str("symbol", p.Symbol).
			Str("side", p.Side.String()).
			Msg("adopted externally opened position, flagged for review")
	}

	x.m.ActivePositions.Set(float64(x.book.Count()))
	x.updateDrawdown(ctx)
}

// updateDrawdown applies the drawdown circuit breaker: force-close
// everything and halt entries once the limit is breached.
func (x *Executor) updateDrawdown(ctx context.Context) {
	dd := 0.0
	if x.peak > 0 {
		dd = (x.peak - x.balance) / x.peak
	}
	x.m.DrawdownFraction.Set(dd)

	if x.halted || dd < x.config.Risk.MaxDrawdownLimit {
		return
	}

	log.Error().
		Float64("drawdown", dd).
		Float64("limit", x.config.Risk.MaxDrawdownLimit).
		Msg("max drawdown breached, force-closing all positions")
	x.halted = true
	x.forceCloseAll(ctx, engine.ExitDrawdownStop)
}

func (x *Executor) forceCloseAll(ctx context.Context, reason engine.ExitReason) {
	symbols := make([]string, 0, len(x.engines))
	for symbol := range x.engines {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	// close in symbol order so the recorded trade sequence is reproducible
	for _, symbol := range symbols {
		eng := x.engines[symbol]
		pos := eng.Position()
		if pos == nil {
			continue
		}

		price, ok := x.lastPrice[symbol]
		if !ok {
			price = pos.EntryPrice
		}

		if !x.config.DryRun {
			req := exchange.OrderRequest{
				Symbol:    symbol,
				Side:      orderSide(opposite(pos.Side)),
				TradeSide: exchange.TradeSideClose,
				Quantity:  pos.Quantity,
				OrderType: exchange.OrderTypeMarket,
			}
			result, err := x.submit(ctx, req)
			if err != nil {
				x.logOrderFailure(symbol, pos.ID, "force close failed", err)
				continue
			}
			if result.AvgFillPrice > 0 {
				price = result.AvgFillPrice
			}
		}

		if trade := eng.ForceClose(reason, price, time.Now()); trade != nil {
			x.recordClose(*trade)
		}
	}
}

// shutdown persists every open position so a restart can resume them. Any
// submission that was in flight has already completed or failed by the time
// the run loop reaches this point.
func (x *Executor) shutdown() {
	for _, p := range x.book.Open() {
		x.persist(p)
	}
	log.Info().Int("open_positions", x.book.Count()).Msg("executor stopped")
}

// submit places an order with bounded backoff. Shutdown must not abandon an
// in-flight submission unconfirmed, so the attempt itself is shielded from
// cancellation and bounded by the REST timeout instead.
func (x *Executor) submit(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	start := time.Now()
	var result exchange.OrderResult
	attempt := 0

	err := x.retry.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if attempt > 0 {
			x.m.OrderRetries.Inc()
		}
		attempt++

		callCtx, cancel := context.WithTimeout(ctx, x.config.RESTTimeout)
		defer cancel()

		r, err := x.conn.PlaceOrder(callCtx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, exchange.IsRetryable)

	x.m.OrderExecutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		x.m.OrderFailures.Inc()
		return exchange.OrderResult{}, err
	}
	return result, nil
}

func (x *Executor) recordClose(trade engine.Trade) {
	x.balance += trade.PnL
	if x.balance > x.peak {
		x.peak = x.balance
	}
	x.trades = append(x.trades, trade)
	x.equity = append(x.equity, engine.EquityPoint{Ts: trade.ExitTime, Equity: x.balance})

	if x.store != nil {
		if err := x.store.DeleteOpenPosition(trade.ID); err != nil {
			log.Warn().Err(err).Str("position_id", trade.ID).Msg("failed to remove recovered position")
		}
		if err := x.store.AppendTrade(trade); err != nil {
			log.Warn().Err(err).Str("position_id", trade.ID).Msg("failed to journal trade")
		}
	}

	x.m.PositionsClosed.WithLabelValues(string(trade.ExitReason)).Inc()
	x.m.ActivePositions.Set(float64(x.book.Count()))
	x.m.EquityBalance.Set(x.balance)

	log.Info().
		Str("position_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("reason", string(trade.ExitReason)).
		Float64("pnl", trade.PnL).
		Float64("balance", x.balance).
		Msg("trade closed")
}

func (x *Executor) persist(p *engine.Position) {
	if x.store == nil {
		return
	}
	if err := x.store.SaveOpenPosition(p); err != nil {
		log.Warn().Err(err).Str("position_id", p.ID).Msg("failed to persist position")
	}
}

func (x *Executor) priceFor(ctx context.Context, symbol string) (float64, bool) {
	if price, ok := x.lastPrice[symbol]; ok && price > 0 {
		return price, true
	}
	price, err := x.conn.LastPrice(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("no price available for entry")
		x.m.ErrorsTotal.Inc()
		return 0, false
	}
	x.lastPrice[symbol] = price
	return price, true
}

// logOrderFailure logs a classified submission failure with enough context
// to reconstruct the decision.
func (x *Executor) logOrderFailure(symbol, positionID, msg string, err error) {
	kind := exchange.KindOf(err)
	evt := log.Warn().
		Err(err).
		Str("symbol", symbol).
		Str("error_kind", string(kind))
	if positionID != "" {
		evt = evt.Str("position_id", positionID)
	}
	evt.Msg(msg)

	x.m.ErrorsTotal.Inc()
	if kind == exchange.KindNetworkTimeout || kind == exchange.KindRateLimited {
		x.m.CycleFailures.Inc()
	}
}

func orderSide(s engine.Side) string {
	if s == engine.Short {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func opposite(s engine.Side) engine.Side {
	if s == engine.Long {
		return engine.Short
	}
	return engine.Long
}
