package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stratbot/internal/backtest"
	"stratbot/internal/cfg"
	"stratbot/internal/signal"
)

func main() {
	var (
		dataPath   = flag.String("data", "", "Path to historical data file (.csv or .json)")
		outputPath = flag.String("output", "backtest_results", "Output directory for results")
		strategy   = flag.String("strategy", "confidence", "Strategy name recorded in the run report")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		symbols    = flag.String("symbols", "", "Comma-separated symbols to test (overrides config)")
		balance    = flag.Float64("balance", 0, "Initial balance (overrides config)")
		dataFormat = flag.String("format", "auto", "Data format: auto, csv, json")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if *symbols != "" {
		config.Symbols = parseSymbols(*symbols)
	}
	if *balance > 0 {
		config.InitialBalance = *balance
	}
	if *dataPath == "" {
		*dataPath = config.DataPath
	}
	if *dataPath == "" {
		log.Fatal().Msg("no data path given, use -data or DATA_PATH")
	}

	loader := backtest.NewDataLoader()
	if err := loadData(loader, *dataPath, *dataFormat); err != nil {
		log.Fatal().Err(err).Str("path", *dataPath).Msg("failed to load data")
	}

	bars := filterSymbols(loader.Bars(), config.Symbols)
	if len(bars) == 0 {
		log.Fatal().Strs("symbols", config.Symbols).Msg("no bars for configured symbols")
	}

	advisor := signal.NewAdvisor(signal.ConfidenceScorer{}, config.SignalThreshold)
	sim := backtest.NewSimulator(*strategy, config.Risk, config.InitialBalance, signalFrom(advisor))

	result := sim.Run(bars)

	reporter := backtest.NewReporter(result, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().Str("output", *outputPath).Msg("backtest completed")
}

// signalFrom adapts the live advisor to bar-driven entries. The bar's
// feature fields plus its confidence column feed the scorer; the high-low
// range serves as the volatility reference for stop placement.
func signalFrom(advisor *signal.Advisor) backtest.SignalFunc {
	return func(bar backtest.Bar) (signal.Advice, bool) {
		features := make(map[string]float64, len(bar.Features)+1)
		for k, v := range bar.Features {
			features[k] = v
		}
		features["confidence"] = bar.Confidence

		volatility := bar.High - bar.Low
		return advisor.Advise(bar.Symbol, features, volatility)
	}
}

func loadData(loader *backtest.DataLoader, path, format string) error {
	switch format {
	case "csv":
		return loader.LoadFromCSV(path)
	case "json":
		return loader.LoadFromJSON(path)
	case "auto":
		switch {
		case strings.HasSuffix(path, ".csv"):
			return loader.LoadFromCSV(path)
		case strings.HasSuffix(path, ".json"):
			return loader.LoadFromJSON(path)
		default:
			return fmt.Errorf("cannot determine file format for: %s", path)
		}
	default:
		return fmt.Errorf("unknown data format: %s", format)
	}
}

func filterSymbols(bars []backtest.Bar, symbols []string) []backtest.Bar {
	if len(symbols) == 0 {
		return bars
	}
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	filtered := bars[:0:0]
	for _, b := range bars {
		if want[b.Symbol] {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

func parseSymbols(symbols string) []string {
	var result []string
	for _, s := range strings.Split(symbols, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
