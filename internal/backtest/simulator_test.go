package backtest

import (
	"math"
	"testing"
	"time"

	"stratbot/internal/cfg"
	"stratbot/internal/engine"
	"stratbot/internal/signal"
)

func simRisk() cfg.RiskConfig {
	return cfg.RiskConfig{
		RiskPerTrade:           0.02,
		MaxPositionPct:         1.0,
		MaxConcurrentPositions: 3,
		MaxDrawdownLimit:       0.20,
		StopDistanceMult:       1.0,
		TargetDistanceMult:     3.0,
		TrailingStopPct:        0.03,
	}
}

func bar(symbol string, ts int, close float64) Bar {
	return Bar{
		Ts:     time.Unix(int64(ts)*60, 0),
		Symbol: symbol,
		Open:   close, High: close, Low: close, Close: close,
		Volume: 1,
	}
}

// longOnFirstBar enters long once per symbol on the first bar seen.
func longOnFirstBar(volatility float64) SignalFunc {
	seen := map[string]bool{}
	return func(b Bar) (signal.Advice, bool) {
		if seen[b.Symbol] {
			return signal.Advice{}, false
		}
		seen[b.Symbol] = true
		return signal.Advice{Symbol: b.Symbol, Side: engine.Long, Confidence: 0.9, Volatility: volatility}, true
	}
}

func TestRunEquityIdentity(t *testing.T) {
	t.Parallel()

	bars := []Bar{
		bar("BTCUSDT", 0, 100),
		bar("BTCUSDT", 1, 103),
		bar("BTCUSDT", 2, 107), // take profit at 106 touched
		bar("BTCUSDT", 3, 107),
	}

	sim := NewSimulator("test", simRisk(), 10000, longOnFirstBar(2))
	res := sim.Run(bars)

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	if res.Trades[0].ExitReason != engine.ExitTakeProfit {
		t.Errorf("expected take profit exit, got %v", res.Trades[0].ExitReason)
	}

	var sum float64
	for _, tr := range res.Trades {
		sum += tr.PnL
	}
	if math.Abs(res.FinalBalance-(res.InitialBalance+sum)) > 1e-9 {
		t.Errorf("final balance %v != initial %v + pnl %v", res.FinalBalance, res.InitialBalance, sum)
	}
	if len(res.EquityCurve) != len(res.Trades) {
		t.Errorf("expected one equity point per trade, got %d/%d", len(res.EquityCurve), len(res.Trades))
	}
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	bars := []Bar{
		bar("ETHUSDT", 0, 100),
		bar("BTCUSDT", 1, 100),
		bar("ETHUSDT", 2, 105),
		bar("BTCUSDT", 3, 95),
	}

	a := NewSimulator("test", simRisk(), 10000, longOnFirstBar(2)).Run(bars)
	b := NewSimulator("test", simRisk(), 10000, longOnFirstBar(2)).Run(bars)

	if a.FinalBalance != b.FinalBalance {
		t.Errorf("runs diverged: %v vs %v", a.FinalBalance, b.FinalBalance)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts diverged: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if a.Trades[i].PnL != b.Trades[i].PnL {
			t.Errorf("trade %d pnl diverged: %v vs %v", i, a.Trades[i].PnL, b.Trades[i].PnL)
		}
	}
	if len(a.Symbols) != 2 || a.Symbols[0] != "BTCUSDT" || a.Symbols[1] != "ETHUSDT" {
		t.Errorf("symbols not sorted: %v", a.Symbols)
	}
}

func TestCloseAllOrderIsStable(t *testing.T) {
	t.Parallel()

	// four symbols left open until end of data; the forced closes must come
	// out in symbol order on every run, not map order
	symbols := []string{"AAA", "BBB", "CCC", "DDD"}
	var bars []Bar
	for i, s := range symbols {
		bars = append(bars, bar(s, i, 100))
	}

	want := func(res Result) {
		t.Helper()
		if len(res.Trades) != len(symbols) {
			t.Fatalf("expected %d trades, got %d", len(symbols), len(res.Trades))
		}
		for i, tr := range res.Trades {
			if tr.Symbol != symbols[i] {
				t.Fatalf("trade order differs between identical runs: got %s at %d", tr.Symbol, i)
			}
			if tr.ExitReason != engine.ExitEndOfData {
				t.Fatalf("expected end-of-data close, got %v", tr.ExitReason)
			}
		}
	}

	rc := simRisk()
	rc.MaxConcurrentPositions = len(symbols)
	for run := 0; run < 50; run++ {
		want(NewSimulator("test", rc, 10000, longOnFirstBar(2)).Run(bars))
	}
}

func TestResultSymbolStats(t *testing.T) {
	t.Parallel()

	bars := []Bar{
		bar("BTCUSDT", 0, 100),
		bar("ETHUSDT", 1, 100),
		bar("BTCUSDT", 2, 107), // BTC take profit at 106
		bar("ETHUSDT", 3, 95),  // ETH stop at 98
	}

	rc := simRisk()
	rc.MaxConcurrentPositions = 2
	res := NewSimulator("test", rc, 10000, longOnFirstBar(2)).Run(bars)

	if len(res.SymbolStats) != 2 {
		t.Fatalf("expected stats for 2 symbols, got %d", len(res.SymbolStats))
	}

	btc := res.SymbolStats["BTCUSDT"]
	if btc.Trades != 1 || btc.Wins != 1 || btc.WinRate != 1 {
		t.Errorf("unexpected BTC stats: %+v", btc)
	}
	if btc.NetPnL <= 0 {
		t.Errorf("expected positive BTC pnl, got %v", btc.NetPnL)
	}

	eth := res.SymbolStats["ETHUSDT"]
	if eth.Trades != 1 || eth.Wins != 0 || eth.WinRate != 0 {
		t.Errorf("unexpected ETH stats: %+v", eth)
	}
	if eth.NetPnL >= 0 {
		t.Errorf("expected negative ETH pnl, got %v", eth.NetPnL)
	}

	var total float64
	for _, st := range res.SymbolStats {
		total += st.NetPnL
	}
	if math.Abs(total-res.Metrics.NetPnL) > 1e-9 {
		t.Errorf("symbol pnl %v does not sum to net pnl %v", total, res.Metrics.NetPnL)
	}
}

func TestRunClosesAtEndOfData(t *testing.T) {
	t.Parallel()

	bars := []Bar{
		bar("BTCUSDT", 0, 100),
		bar("BTCUSDT", 1, 101), // no exit condition touched
	}

	res := NewSimulator("test", simRisk(), 10000, longOnFirstBar(2)).Run(bars)

	if len(res.Trades) != 1 {
		t.Fatalf("expected the open position force-closed, got %d trades", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != engine.ExitEndOfData {
		t.Errorf("expected end-of-data exit, got %v", tr.ExitReason)
	}
	if tr.ExitPrice != 101 {
		t.Errorf("expected exit at the last seen close, got %v", tr.ExitPrice)
	}
}

func TestRunDrawdownBreaker(t *testing.T) {
	t.Parallel()

	rc := simRisk()
	rc.MaxDrawdownLimit = 0.01

	// entry at 100 with a stop at 98, then a crash far through the stop:
	// decisions at bar close realize the full gap loss
	bars := []Bar{
		bar("BTCUSDT", 0, 100),
		bar("BTCUSDT", 1, 50),
		bar("BTCUSDT", 2, 50),
		bar("ETHUSDT", 3, 50), // fresh symbol, entry must still be blocked
	}

	seen := false
	signalFn := func(b Bar) (signal.Advice, bool) {
		if b.Symbol == "BTCUSDT" && !seen {
			seen = true
			return signal.Advice{Symbol: b.Symbol, Side: engine.Long, Confidence: 0.9, Volatility: 2}, true
		}
		if b.Symbol == "ETHUSDT" {
			return signal.Advice{Symbol: b.Symbol, Side: engine.Long, Confidence: 0.9, Volatility: 2}, true
		}
		return signal.Advice{}, false
	}

	res := NewSimulator("test", rc, 10000, signalFn).Run(bars)

	if !res.Halted {
		t.Fatal("expected the drawdown breaker to trip")
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected no entries after the halt, got %d trades", len(res.Trades))
	}
	if res.Trades[0].PnL >= 0 {
		t.Errorf("expected a losing trade, got pnl %v", res.Trades[0].PnL)
	}
}

func TestRunSkipsMalformedBars(t *testing.T) {
	t.Parallel()

	bad := bar("BTCUSDT", 1, 100)
	bad.Close = math.NaN()

	bars := []Bar{
		bar("BTCUSDT", 0, 100),
		bad,
		{Ts: time.Unix(120, 0), Symbol: "BTCUSDT", Open: 100, High: 100, Low: -5, Close: 100, Volume: 1},
		bar("BTCUSDT", 3, 100),
	}

	res := NewSimulator("test", simRisk(), 10000, func(Bar) (signal.Advice, bool) {
		return signal.Advice{}, false
	}).Run(bars)

	if res.SkippedBars != 2 {
		t.Errorf("expected 2 skipped bars, got %d", res.SkippedBars)
	}
	if len(res.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(res.Trades))
	}
}
