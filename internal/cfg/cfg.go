package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RiskConfig holds the risk limits applied to every entry decision.
// It is constructed once at startup and passed by value; no component
// mutates it after Load returns.
type RiskConfig struct {
	RiskPerTrade           float64 `yaml:"riskPerTrade"`           // fraction of balance risked per trade
	MaxPositionPct         float64 `yaml:"maxPositionPct"`         // max notional as fraction of balance
	MaxConcurrentPositions int     `yaml:"maxConcurrentPositions"` // hard cap on open positions
	MaxDrawdownLimit       float64 `yaml:"maxDrawdownLimit"`       // circuit-breaker threshold, fraction of peak
	StopDistanceMult       float64 `yaml:"stopDistanceMult"`       // stop distance = volatility * mult
	TargetDistanceMult     float64 `yaml:"targetDistanceMult"`     // target distance = volatility * mult
	TrailingStopPct        float64 `yaml:"trailingStopPct"`        // trailing stop offset from excursion price
}

type Settings struct {
	Key, Secret       string
	Symbols           []string
	BaseURL           string
	WsURL             string
	Ping              time.Duration
	DataPath          string
	InitialBalance    float64
	SignalThreshold   float64
	DryRun            bool
	MetricsPort       int
	RESTTimeout       time.Duration
	CycleInterval     time.Duration
	ReconcileInterval time.Duration
	MaxOrderRetries   int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	Risk              RiskConfig
}

type ConfigFile struct {
	API struct {
		Key     string `yaml:"key"`
		Secret  string `yaml:"secret"`
		BaseURL string `yaml:"baseURL"`
		WsURL   string `yaml:"wsURL"`
	} `yaml:"api"`

	Trading struct {
		Symbols         []string `yaml:"symbols"`
		InitialBalance  float64  `yaml:"initialBalance"`
		SignalThreshold float64  `yaml:"signalThreshold"`
		DryRun          bool     `yaml:"dryRun"`
	} `yaml:"trading"`

	Risk RiskConfig `yaml:"risk"`

	System struct {
		DataPath          string `yaml:"dataPath"`
		PingInterval      string `yaml:"pingInterval"`
		MetricsPort       int    `yaml:"metricsPort"`
		RESTTimeout       string `yaml:"restTimeout"`
		CycleInterval     string `yaml:"cycleInterval"`
		ReconcileInterval string `yaml:"reconcileInterval"`
		MaxOrderRetries   int    `yaml:"maxOrderRetries"`
		RetryBaseDelay    string `yaml:"retryBaseDelay"`
		RetryMaxDelay     string `yaml:"retryMaxDelay"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return LoadFile(configPath)
	}
	return loadFromEnv()
}

func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		Key:               getEnvOrDefault("EXCHANGE_API_KEY", config.API.Key),
		Secret:            getEnvOrDefault("EXCHANGE_SECRET_KEY", config.API.Secret),
		Symbols:           getSymbolsFromEnvOrConfig(config.Trading.Symbols),
		BaseURL:           getEnvOrDefault("BASE_URL", config.API.BaseURL),
		WsURL:             getEnvOrDefault("WS_URL", config.API.WsURL),
		Ping:              parseDurationOrDefault(config.System.PingInterval, 15*time.Second),
		DataPath:          getEnvOrDefault("DATA_PATH", config.System.DataPath),
		InitialBalance:    getFloatFromEnvOrConfig("INITIAL_BALANCE", config.Trading.InitialBalance),
		SignalThreshold:   getFloatFromEnvOrConfig("SIGNAL_THRESHOLD", config.Trading.SignalThreshold),
		DryRun:            getBoolFromEnvOrConfig("DRY_RUN", config.Trading.DryRun),
		MetricsPort:       getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		RESTTimeout:       parseDurationOrDefault(config.System.RESTTimeout, 5*time.Second),
		CycleInterval:     parseDurationOrDefault(config.System.CycleInterval, 5*time.Second),
		ReconcileInterval: parseDurationOrDefault(config.System.ReconcileInterval, 30*time.Second),
		MaxOrderRetries:   getIntFromEnvOrConfig("MAX_ORDER_RETRIES", config.System.MaxOrderRetries),
		RetryBaseDelay:    parseDurationOrDefault(config.System.RetryBaseDelay, time.Second),
		RetryMaxDelay:     parseDurationOrDefault(config.System.RetryMaxDelay, 5*time.Second),
		Risk:              applyRiskDefaults(config.Risk),
	}
	applySystemDefaults(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Key:               os.Getenv("EXCHANGE_API_KEY"),
		Secret:            os.Getenv("EXCHANGE_SECRET_KEY"),
		Symbols:           splitOrDefault(os.Getenv("SYMBOLS"), []string{"BTCUSDT"}),
		BaseURL:           getEnvOrDefault("BASE_URL", "https://api.exchange.local"),
		WsURL:             getEnvOrDefault("WS_URL", "wss://stream.exchange.local/public"),
		Ping:              getDurationOrDefault("PING_INTERVAL", 15*time.Second),
		DataPath:          os.Getenv("DATA_PATH"), // optional
		InitialBalance:    getFloatOrDefault("INITIAL_BALANCE", 10000),
		SignalThreshold:   getFloatOrDefault("SIGNAL_THRESHOLD", 0.65),
		DryRun:            getBoolOrDefault("DRY_RUN", false),
		MetricsPort:       getIntOrDefault("METRICS_PORT", 8080),
		RESTTimeout:       getDurationOrDefault("REST_TIMEOUT", 5*time.Second),
		CycleInterval:     getDurationOrDefault("CYCLE_INTERVAL", 5*time.Second),
		ReconcileInterval: getDurationOrDefault("RECONCILE_INTERVAL", 30*time.Second),
		MaxOrderRetries:   getIntOrDefault("MAX_ORDER_RETRIES", 3),
		RetryBaseDelay:    getDurationOrDefault("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:     getDurationOrDefault("RETRY_MAX_DELAY", 5*time.Second),
		Risk: applyRiskDefaults(RiskConfig{
			RiskPerTrade:           getFloatOrDefault("RISK_PER_TRADE", 0),
			MaxPositionPct:         getFloatOrDefault("MAX_POSITION_PCT", 0),
			MaxConcurrentPositions: getIntOrDefault("MAX_CONCURRENT_POSITIONS", 0),
			MaxDrawdownLimit:       getFloatOrDefault("MAX_DRAWDOWN_LIMIT", 0),
			StopDistanceMult:       getFloatOrDefault("STOP_DISTANCE_MULT", 0),
			TargetDistanceMult:     getFloatOrDefault("TARGET_DISTANCE_MULT", 0),
			TrailingStopPct:        getFloatOrDefault("TRAILING_STOP_PCT", 0),
		}),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// DefaultRisk returns the risk limits used when a field is left unset.
func DefaultRisk() RiskConfig {
	return RiskConfig{
		RiskPerTrade:           0.02,
		MaxPositionPct:         0.25,
		MaxConcurrentPositions: 3,
		MaxDrawdownLimit:       0.20,
		StopDistanceMult:       1.5,
		TargetDistanceMult:     3.0,
		TrailingStopPct:        0.03,
	}
}

func applyRiskDefaults(rc RiskConfig) RiskConfig {
	def := DefaultRisk()
	if rc.RiskPerTrade == 0 {
		rc.RiskPerTrade = def.RiskPerTrade
	}
	if rc.MaxPositionPct == 0 {
		rc.MaxPositionPct = def.MaxPositionPct
	}
	if rc.MaxConcurrentPositions == 0 {
		rc.MaxConcurrentPositions = def.MaxConcurrentPositions
	}
	if rc.MaxDrawdownLimit == 0 {
		rc.MaxDrawdownLimit = def.MaxDrawdownLimit
	}
	if rc.StopDistanceMult == 0 {
		rc.StopDistanceMult = def.StopDistanceMult
	}
	if rc.TargetDistanceMult == 0 {
		rc.TargetDistanceMult = def.TargetDistanceMult
	}
	if rc.TrailingStopPct == 0 {
		rc.TrailingStopPct = def.TrailingStopPct
	}
	return rc
}

func applySystemDefaults(s *Settings) {
	if s.InitialBalance == 0 {
		s.InitialBalance = 10000
	}
	if s.SignalThreshold == 0 {
		s.SignalThreshold = 0.65
	}
	if s.MetricsPort == 0 {
		s.MetricsPort = 8080
	}
	if s.MaxOrderRetries == 0 {
		s.MaxOrderRetries = 3
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func parseDurationOrDefault(v string, defaultValue time.Duration) time.Duration {
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getSymbolsFromEnvOrConfig(configSymbols []string) []string {
	if env := os.Getenv("SYMBOLS"); env != "" {
		return strings.Split(env, ",")
	}
	if len(configSymbols) > 0 {
		return configSymbols
	}
	return []string{"BTCUSDT"}
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if len(settings.Symbols) == 0 {
		return fmt.Errorf("at least one trading symbol must be specified")
	}

	if settings.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	if settings.Ping < time.Second || settings.Ping > 5*time.Minute {
		return fmt.Errorf("ping interval must be between 1s and 5m, got %v", settings.Ping)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.CycleInterval < time.Second || settings.CycleInterval > time.Hour {
		return fmt.Errorf("cycle interval must be between 1s and 1h, got %v", settings.CycleInterval)
	}
	if settings.ReconcileInterval < time.Second || settings.ReconcileInterval > time.Hour {
		return fmt.Errorf("reconcile interval must be between 1s and 1h, got %v", settings.ReconcileInterval)
	}
	if settings.RetryBaseDelay <= 0 || settings.RetryBaseDelay > settings.RetryMaxDelay {
		return fmt.Errorf("retry base delay must be positive and below the max delay, got %v/%v",
			settings.RetryBaseDelay, settings.RetryMaxDelay)
	}

	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.MaxOrderRetries < 1 || settings.MaxOrderRetries > 10 {
		return fmt.Errorf("max order retries must be between 1 and 10, got %d", settings.MaxOrderRetries)
	}

	if settings.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive, got %f", settings.InitialBalance)
	}
	if settings.SignalThreshold < 0.5 || settings.SignalThreshold > 0.99 {
		return fmt.Errorf("signal threshold must be between 0.5 and 0.99, got %f", settings.SignalThreshold)
	}

	return validateRisk(settings.Risk)
}

func validateRisk(rc RiskConfig) error {
	if rc.RiskPerTrade <= 0 || rc.RiskPerTrade > 0.1 {
		return fmt.Errorf("risk per trade must be between 0 and 0.1 (10%%), got %f", rc.RiskPerTrade)
	}
	if rc.MaxPositionPct <= 0 || rc.MaxPositionPct > 1.0 {
		return fmt.Errorf("max position pct must be between 0 and 1, got %f", rc.MaxPositionPct)
	}
	if rc.MaxConcurrentPositions < 1 || rc.MaxConcurrentPositions > 100 {
		return fmt.Errorf("max concurrent positions must be between 1 and 100, got %d", rc.MaxConcurrentPositions)
	}
	if rc.MaxDrawdownLimit <= 0 || rc.MaxDrawdownLimit > 0.5 {
		return fmt.Errorf("max drawdown limit must be between 0 and 0.5 (50%%), got %f", rc.MaxDrawdownLimit)
	}
	if rc.StopDistanceMult <= 0 || rc.StopDistanceMult > 10 {
		return fmt.Errorf("stop distance multiplier must be between 0 and 10, got %f", rc.StopDistanceMult)
	}
	if rc.TargetDistanceMult <= 0 || rc.TargetDistanceMult > 20 {
		return fmt.Errorf("target distance multiplier must be between 0 and 20, got %f", rc.TargetDistanceMult)
	}
	if rc.TrailingStopPct <= 0 || rc.TrailingStopPct > 0.2 {
		return fmt.Errorf("trailing stop pct must be between 0 and 0.2 (20%%), got %f", rc.TrailingStopPct)
	}
	return nil
}
