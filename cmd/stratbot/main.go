package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stratbot/internal/cfg"
	"stratbot/internal/exchange"
	"stratbot/internal/live"
	"stratbot/internal/metrics"
	"stratbot/internal/signal"
	"stratbot/internal/storage"
)

func main() {
	_ = godotenv.Load()
	setupLogging()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	ticks := make(chan exchange.PriceTick, 64)
	signals := make(chan signal.Advice, 16)
	errors := make(chan error, 32)

	advisor := signal.NewAdvisor(signal.ConfidenceScorer{}, c.SignalThreshold)
	startMetricsServer(ctx, c, advisor, signals)

	ws := exchange.NewWS(c.WsURL)
	startPriceStream(ctx, ws, c, ticks, errors)

	var wg sync.WaitGroup
	startErrorHandler(ctx, &wg, errors, m)

	conn := exchange.NewClient(c.Key, c.Secret, c.BaseURL, c.RESTTimeout)
	executor := live.New(c, conn, m, store)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := executor.Run(ctx, signals, ticks); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("executor stopped with error")
			cancel()
		}
	}()

	log.Info().
		Strs("symbols", c.Symbols).
		Bool("dry_run", c.DryRun).
		Int("metrics_port", c.MetricsPort).
		Msg("trading daemon started")

	waitForShutdown(ctx, cancel, &wg)
}

func setupLogging() {
	if level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeStorage opens the recovery store when DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// signalRequest is the payload accepted on POST /signal from the upstream
// scoring pipeline.
type signalRequest struct {
	Symbol     string             `json:"symbol"`
	Features   map[string]float64 `json:"features"`
	Volatility float64            `json:"volatility"`
}

// startMetricsServer serves /metrics, /health and the /signal ingestion
// endpoint on one mux, and shuts the server down with the context.
func startMetricsServer(ctx context.Context, c cfg.Settings, advisor *signal.Advisor, signals chan<- signal.Advice) {
	symbols := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		symbols[s] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req signalRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if !symbols[req.Symbol] {
			http.Error(w, "unknown symbol", http.StatusBadRequest)
			return
		}

		advice, ok := advisor.Advise(req.Symbol, req.Features, req.Volatility)
		if !ok {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("below threshold"))
			return
		}

		select {
		case signals <- advice:
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "signal queue full", http.StatusServiceUnavailable)
		}
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// startPriceStream runs the websocket price stream until the context ends.
func startPriceStream(ctx context.Context, ws exchange.WS, c cfg.Settings, ticks chan exchange.PriceTick, errors chan error) {
	go func() {
		if err := ws.Stream(ctx, c.Symbols, ticks, errors, c.Ping); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("price stream ended")
			errors <- err
		}
	}()
}

// startErrorHandler drains the background error channel into the log and
// metrics.
func startErrorHandler(ctx context.Context, wg *sync.WaitGroup, errors chan error, m *metrics.Metrics) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errors:
				log.Error().Err(err).Msg("background error")
				m.WSReconnects.Inc()
				m.ErrorsTotal.Inc()
			}
		}
	}()
}

// waitForShutdown blocks until a signal or context cancellation, then waits
// for the worker goroutines with a timeout.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
