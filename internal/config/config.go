// Package config loads the control plane's settings from a YAML file with
// environment-variable overrides, in the same two-layer shape as the
// bitunix-bot cfg package: a file provides the base, env vars (and .env via
// godotenv) win over it, and the merged result is validated before use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SymbolRiskOverride lets a symbol override the default SL/TP percentages.
type SymbolRiskOverride struct {
	Symbol           string  `yaml:"symbol"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	TakeProfitPct    float64 `yaml:"take_profit_pct"`
	TrailingStopPct  float64 `yaml:"trailing_stop_pct"`
}

// Config is the fully-resolved, validated settings object the control plane
// is constructed from.
type Config struct {
	// Exchange
	ExchangeName     string `yaml:"exchange_name"`
	ExchangeBaseURL  string `yaml:"exchange_base_url"`
	ExchangeAPIKey   string `yaml:"-"`
	ExchangeSecret   string `yaml:"-"`
	RecvWindowMs     int    `yaml:"recv_window_ms"`
	PaperMode        bool   `yaml:"paper_mode"`

	// Universe
	TradingPairs []string `yaml:"trading_pairs"`
	QuoteAsset   string   `yaml:"quote_asset"`

	// Risk defaults (percentages expressed as 0.015 == 1.5%)
	DefaultStopLossPct     decimal.Decimal       `yaml:"-"`
	DefaultTakeProfitPct   decimal.Decimal       `yaml:"-"`
	DefaultTrailingStopPct decimal.Decimal       `yaml:"-"`
	SymbolRiskOverrides    []SymbolRiskOverride  `yaml:"symbol_risk_overrides"`
	PositionNotional       decimal.Decimal       `yaml:"-"`
	MaxConcurrentPositions int                   `yaml:"max_concurrent_positions"`
	MaxDailyLossPct        decimal.Decimal       `yaml:"-"`
	EmergencyStopPct       decimal.Decimal       `yaml:"-"`
	MaxHoldingDuration     time.Duration         `yaml:"-"`
	InitialCapital         decimal.Decimal       `yaml:"-"`

	// Scheduling intervals
	DecisionInterval time.Duration `yaml:"-"`
	RiskInterval     time.Duration `yaml:"-"`
	ReconcileInterval time.Duration `yaml:"-"`

	// Default strategy configs to seed on first startup
	DefaultStrategies []DefaultStrategyConfig `yaml:"default_strategies"`

	// Notifier
	TelegramToken  string `yaml:"-"`
	TelegramChatID int64  `yaml:"-"`

	// Admin HTTP API
	AdminListenAddr string `yaml:"admin_listen_addr"`

	// Persistence
	DatabaseDriver string `yaml:"database_driver"` // "postgres" or "sqlite"
	DatabaseDSN    string `yaml:"-"`
	ConfigCachePath string `yaml:"config_cache_path"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// DefaultStrategyConfig seeds internal/domain.StrategyConfig rows the first
// time the reconciler runs against an empty strategy_configs table.
type DefaultStrategyConfig struct {
	Symbol       string            `yaml:"symbol"`
	StrategyName string            `yaml:"strategy_name"`
	Active       bool              `yaml:"active"`
	Params       map[string]string `yaml:"params"`
}

type yamlFile struct {
	ExchangeName           string                  `yaml:"exchange_name"`
	ExchangeBaseURL        string                  `yaml:"exchange_base_url"`
	RecvWindowMs           int                     `yaml:"recv_window_ms"`
	PaperMode              bool                    `yaml:"paper_mode"`
	TradingPairs           []string                `yaml:"trading_pairs"`
	QuoteAsset             string                  `yaml:"quote_asset"`
	DefaultStopLossPct     string                  `yaml:"default_stop_loss_pct"`
	DefaultTakeProfitPct   string                  `yaml:"default_take_profit_pct"`
	DefaultTrailingStopPct string                  `yaml:"default_trailing_stop_pct"`
	SymbolRiskOverrides    []SymbolRiskOverride    `yaml:"symbol_risk_overrides"`
	PositionNotional       string                  `yaml:"position_notional"`
	MaxConcurrentPositions int                     `yaml:"max_concurrent_positions"`
	MaxDailyLossPct        string                  `yaml:"max_daily_loss_pct"`
	EmergencyStopPct       string                  `yaml:"emergency_stop_pct"`
	MaxHoldingDurationMin  int                     `yaml:"max_holding_duration_minutes"`
	InitialCapital         string                  `yaml:"initial_capital"`
	DecisionIntervalSec    int                     `yaml:"decision_interval_seconds"`
	RiskIntervalSec        int                     `yaml:"risk_interval_seconds"`
	ReconcileIntervalMin   int                     `yaml:"reconcile_interval_minutes"`
	DefaultStrategies      []DefaultStrategyConfig `yaml:"default_strategies"`
	AdminListenAddr        string                  `yaml:"admin_listen_addr"`
	DatabaseDriver         string                  `yaml:"database_driver"`
	ConfigCachePath        string                  `yaml:"config_cache_path"`
	LogLevel               string                  `yaml:"log_level"`
}

// Load reads .env (best-effort), then the YAML file at path (if non-empty and
// present), then overlays environment variables, validates the result and
// returns it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	var yf yamlFile
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &yf); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	c := &Config{
		ExchangeName:           envOrDefault("EXCHANGE_NAME", yf.ExchangeName, "binance"),
		ExchangeBaseURL:        envOrDefault("EXCHANGE_BASE_URL", yf.ExchangeBaseURL, "https://api.binance.com"),
		ExchangeAPIKey:         os.Getenv("EXCHANGE_API_KEY"),
		ExchangeSecret:         os.Getenv("EXCHANGE_API_SECRET"),
		RecvWindowMs:           intOrDefault("RECV_WINDOW_MS", yf.RecvWindowMs, 5000),
		PaperMode:              boolOrDefault("PAPER_MODE", yf.PaperMode, true),
		TradingPairs:           stringsOrDefault("TRADING_PAIRS", yf.TradingPairs, []string{"BTCUSDT"}),
		QuoteAsset:             envOrDefault("QUOTE_ASSET", yf.QuoteAsset, "USDT"),
		DefaultStopLossPct:     decimalOrDefault("DEFAULT_STOP_LOSS_PCT", yf.DefaultStopLossPct, "0.015"),
		DefaultTakeProfitPct:   decimalOrDefault("DEFAULT_TAKE_PROFIT_PCT", yf.DefaultTakeProfitPct, "0.03"),
		DefaultTrailingStopPct: decimalOrDefault("DEFAULT_TRAILING_STOP_PCT", yf.DefaultTrailingStopPct, "0.01"),
		SymbolRiskOverrides:    yf.SymbolRiskOverrides,
		PositionNotional:       decimalOrDefault("POSITION_NOTIONAL", yf.PositionNotional, "1000"),
		MaxConcurrentPositions: intOrDefault("MAX_CONCURRENT_POSITIONS", yf.MaxConcurrentPositions, 10),
		MaxDailyLossPct:        decimalOrDefault("MAX_DAILY_LOSS_PCT", yf.MaxDailyLossPct, "0.02"),
		EmergencyStopPct:       decimalOrDefault("EMERGENCY_STOP_PCT", yf.EmergencyStopPct, "0.018"),
		MaxHoldingDuration:     time.Duration(intOrDefault("MAX_HOLDING_DURATION_MINUTES", yf.MaxHoldingDurationMin, 60)) * time.Minute,
		InitialCapital:         decimalOrDefault("INITIAL_CAPITAL", yf.InitialCapital, "10000"),
		DecisionInterval:       time.Duration(intOrDefault("DECISION_INTERVAL_SECONDS", yf.DecisionIntervalSec, 15)) * time.Second,
		RiskInterval:           time.Duration(intOrDefault("RISK_INTERVAL_SECONDS", yf.RiskIntervalSec, 1)) * time.Second,
		ReconcileInterval:      time.Duration(intOrDefault("RECONCILE_INTERVAL_MINUTES", yf.ReconcileIntervalMin, 5)) * time.Minute,
		DefaultStrategies:      yf.DefaultStrategies,
		TelegramToken:          os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:         int64FromEnv("TELEGRAM_CHAT_ID", 0),
		AdminListenAddr:        envOrDefault("ADMIN_LISTEN_ADDR", yf.AdminListenAddr, ":8090"),
		DatabaseDriver:         envOrDefault("DATABASE_DRIVER", yf.DatabaseDriver, "sqlite"),
		DatabaseDSN:            envOrDefault("DATABASE_DSN", "", "scalpbot.db"),
		ConfigCachePath:        envOrDefault("CONFIG_CACHE_PATH", yf.ConfigCachePath, "scalpbot-configcache.db"),
		LogLevel:               envOrDefault("LOG_LEVEL", yf.LogLevel, "info"),
	}

	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func validate(c *Config) error {
	if len(c.TradingPairs) == 0 {
		return fmt.Errorf("config: trading_pairs must not be empty")
	}
	if !c.PaperMode && (c.ExchangeAPIKey == "" || c.ExchangeSecret == "") {
		return fmt.Errorf("config: EXCHANGE_API_KEY and EXCHANGE_API_SECRET are required when paper_mode=false")
	}
	if c.DecisionInterval <= 0 || c.RiskInterval <= 0 {
		return fmt.Errorf("config: decision_interval_seconds and risk_interval_seconds must be positive")
	}
	if c.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("config: max_concurrent_positions must be positive")
	}
	if c.MaxDailyLossPct.IsNegative() || c.MaxDailyLossPct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: max_daily_loss_pct must be within [0,1]")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return fmt.Errorf("config: database_driver must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	return nil
}

// RiskParamsFor resolves the effective SL/TP/trailing percentages for a
// symbol, applying any SymbolRiskOverrides entry over the defaults.
func (c *Config) RiskParamsFor(symbol string) (sl, tp, trailing decimal.Decimal) {
	sl, tp, trailing = c.DefaultStopLossPct, c.DefaultTakeProfitPct, c.DefaultTrailingStopPct
	for _, o := range c.SymbolRiskOverrides {
		if o.Symbol != symbol {
			continue
		}
		if o.StopLossPct > 0 {
			sl = decimal.NewFromFloat(o.StopLossPct)
		}
		if o.TakeProfitPct > 0 {
			tp = decimal.NewFromFloat(o.TakeProfitPct)
		}
		if o.TrailingStopPct > 0 {
			trailing = decimal.NewFromFloat(o.TrailingStopPct)
		}
	}
	return sl, tp, trailing
}

func envOrDefault(key, yamlValue, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if yamlValue != "" {
		return yamlValue
	}
	return def
}

func intOrDefault(key string, yamlValue, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if yamlValue != 0 {
		return yamlValue
	}
	return def
}

func boolOrDefault(key string, yamlValue, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if yamlValue {
		return yamlValue
	}
	return def
}

func decimalOrDefault(key, yamlValue, def string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	if yamlValue != "" {
		if d, err := decimal.NewFromString(yamlValue); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(def)
	return d
}

func stringsOrDefault(key string, yamlValue, def []string) []string {
	if v := os.Getenv(key); v != "" {
		return strings.Split(v, ",")
	}
	if len(yamlValue) > 0 {
		return yamlValue
	}
	return def
}

func int64FromEnv(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
