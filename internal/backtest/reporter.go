package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Reporter writes the run record in the formats downstream reporting
// consumes: a JSON run record, a CSV trade log and a plain-text summary.
type Reporter struct {
	result     Result
	outputPath string
}

func NewReporter(result Result, outputPath string) *Reporter {
	return &Reporter{result: result, outputPath: outputPath}
}

// GenerateReport writes all report formats under the output directory.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateRunRecord(); err != nil {
		return err
	}
	if err := r.generateTradeLog(); err != nil {
		return err
	}
	return r.generateSummary()
}

// generateRunRecord writes the structured record consumed by the
// reporting/dashboard side: strategy, trades, equity curve, metrics.
func (r *Reporter) generateRunRecord() error {
	path := filepath.Join(r.outputPath, "run.json")

	data, err := json.MarshalIndent(sanitizeForJSON(r.result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	log.Info().Str("file", path).Msg("run record generated")
	return nil
}

// sanitizeForJSON replaces the +Inf profit-factor sentinel, which JSON
// cannot encode, with the largest finite float.
func sanitizeForJSON(res Result) Result {
	if math.IsInf(res.Metrics.ProfitFactor, 1) {
		res.Metrics.ProfitFactor = math.MaxFloat64
	}
	return res
}

func (r *Reporter) generateTradeLog() error {
	path := filepath.Join(r.outputPath, "trade_log.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trade log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "symbol", "side", "entry_time", "exit_time", "entry_price", "exit_price", "quantity", "pnl", "exit_reason"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write trade log header: %w", err)
	}

	for _, t := range r.result.Trades {
		record := []string{
			t.ID,
			t.Symbol,
			t.Side.String(),
			t.EntryTime.Format("2006-01-02 15:04:05"),
			t.ExitTime.Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.PnL, 'f', -1, 64),
			string(t.ExitReason),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write trade record: %w", err)
		}
	}

	log.Info().Str("file", path).Int("trades", len(r.result.Trades)).Msg("trade log generated")
	return nil
}

func (r *Reporter) generateSummary() error {
	path := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprint(file, r.summaryText())
	log.Info().Str("file", path).Msg("summary report generated")
	return nil
}

// PrintSummary writes the human-readable summary to stdout.
func (r *Reporter) PrintSummary() {
	fmt.Print(r.summaryText())
}

func (r *Reporter) summaryText() string {
	res := r.result
	m := res.Metrics

	var b strings.Builder
	fmt.Fprintf(&b, "BACKTEST RESULTS: %s\n", res.StrategyName)
	fmt.Fprintf(&b, "========================\n\n")

	fmt.Fprintf(&b, "Symbols: %s\n", strings.Join(res.Symbols, ", "))
	fmt.Fprintf(&b, "Initial Balance: $%.2f\n", res.InitialBalance)
	fmt.Fprintf(&b, "Final Balance: $%.2f\n", res.FinalBalance)
	fmt.Fprintf(&b, "Net PnL: $%.2f\n\n", m.NetPnL)

	fmt.Fprintf(&b, "Total Trades: %d\n", m.TotalTrades)
	fmt.Fprintf(&b, "Winning Trades: %d\n", m.WinningTrades)
	fmt.Fprintf(&b, "Losing Trades: %d\n", m.LosingTrades)
	fmt.Fprintf(&b, "Win Rate: %.4f\n", m.WinRate)
	if math.IsInf(m.ProfitFactor, 1) {
		fmt.Fprintf(&b, "Profit Factor: inf\n\n")
	} else {
		fmt.Fprintf(&b, "Profit Factor: %.2f\n\n", m.ProfitFactor)
	}

	fmt.Fprintf(&b, "Max Drawdown: %.4f\n", m.MaxDrawdown)
	fmt.Fprintf(&b, "Expectancy: $%.2f\n", m.Expectancy)
	fmt.Fprintf(&b, "Sharpe: %.2f\n", m.Sharpe)
	fmt.Fprintf(&b, "Sortino: %.2f\n", m.Sortino)

	if len(res.SymbolStats) > 0 {
		fmt.Fprintf(&b, "\nPerformance by Symbol\n")
		fmt.Fprintf(&b, "---------------------\n")
		for _, symbol := range res.Symbols {
			st, ok := res.SymbolStats[symbol]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s: %d trades, win rate %.4f, PnL $%.2f\n",
				symbol, st.Trades, st.WinRate, st.NetPnL)
		}
	}

	if res.Halted {
		fmt.Fprintf(&b, "\nDrawdown circuit breaker tripped during the run.\n")
	}
	if res.SkippedBars > 0 {
		fmt.Fprintf(&b, "Skipped %d malformed bars.\n", res.SkippedBars)
	}

	return b.String()
}
