package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"paperTrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance market data (keys are optional, public endpoints need none)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Rules
	CommissionRate    decimal.Decimal // e.g. 0.001 for 0.1%
	AllowShortSelling bool
	QuoteMaxAge       time.Duration // 0 disables the staleness check
	LockTimeout       time.Duration // 0 waits until the request context ends
	InitialBalance    decimal.Decimal
	DefaultPortfolio  string // Name of the portfolio created on first start

	// Risk Analytics
	RiskFreeRate       float64
	TradingDaysPerYear int
	BenchmarkSymbol    string
	BenchmarkDays      int
	RiskSchedule       string // cron spec for equity recording and risk evaluation

	// Alerts
	AlertsEnabled             bool
	AlertMaxDrawdownPercent   decimal.Decimal
	AlertMaxVaR               decimal.Decimal
	AlertPositionLimitPercent decimal.Decimal
	AlertWarnRatio            decimal.Decimal

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogPretty bool

	// Metrics
	MetricsNamespace string
	MetricsAddr      string // Empty disables the /metrics endpoint

	// Connection Settings
	ReconnectDelay time.Duration // Circuit breaker cool-down before probing the exchange again
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Trading Rules
	cfg.CommissionRate, err = getEnvAsDecimalRequired("COMMISSION_RATE", "0.001")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COMMISSION_RATE: %v", err))
	} else if cfg.CommissionRate.IsNegative() || cfg.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "COMMISSION_RATE must be within [0, 1)")
	}

	cfg.AllowShortSelling = getEnvAsBool("ALLOW_SHORT_SELLING", false)

	quoteMaxAge, err := getEnvAsIntRequired("QUOTE_MAX_AGE_SECONDS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUOTE_MAX_AGE_SECONDS: %v", err))
	} else if quoteMaxAge < 0 {
		errs = append(errs, "QUOTE_MAX_AGE_SECONDS cannot be negative")
	}
	cfg.QuoteMaxAge = time.Duration(quoteMaxAge) * time.Second

	lockTimeout, err := getEnvAsIntRequired("LOCK_TIMEOUT_MS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOCK_TIMEOUT_MS: %v", err))
	} else if lockTimeout < 0 {
		errs = append(errs, "LOCK_TIMEOUT_MS cannot be negative")
	}
	cfg.LockTimeout = time.Duration(lockTimeout) * time.Millisecond

	cfg.InitialBalance, err = getEnvAsDecimalRequired("INITIAL_BALANCE", "100000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if !cfg.InitialBalance.IsPositive() {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}
	cfg.DefaultPortfolio = getEnv("DEFAULT_PORTFOLIO", "Paper Trading")

	// Risk Analytics
	cfg.RiskFreeRate, err = getEnvAsFloatRequired("RISK_FREE_RATE", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_FREE_RATE: %v", err))
	}

	cfg.TradingDaysPerYear, err = getEnvAsIntRequired("TRADING_DAYS_PER_YEAR", 252)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADING_DAYS_PER_YEAR: %v", err))
	} else if cfg.TradingDaysPerYear <= 0 {
		errs = append(errs, "TRADING_DAYS_PER_YEAR must be positive")
	}

	cfg.BenchmarkSymbol = getEnv("BENCHMARK_SYMBOL", "BTCUSDT")
	cfg.BenchmarkDays = getEnvAsInt("BENCHMARK_DAYS", 90)
	if cfg.BenchmarkDays <= 0 {
		errs = append(errs, "BENCHMARK_DAYS must be positive")
	}
	cfg.RiskSchedule = getEnv("RISK_SCHEDULE", "@every 5m")

	// Alerts
	cfg.AlertsEnabled = getEnvAsBool("ALERTS_ENABLED", true)
	for _, d := range []struct {
		key  string
		def  string
		dest *decimal.Decimal
	}{
		{"ALERT_MAX_DRAWDOWN_PERCENT", "10", &cfg.AlertMaxDrawdownPercent},
		{"ALERT_MAX_VAR", "0", &cfg.AlertMaxVaR},
		{"ALERT_POSITION_LIMIT_PERCENT", "0", &cfg.AlertPositionLimitPercent},
		{"ALERT_WARN_RATIO", "0.8", &cfg.AlertWarnRatio},
	} {
		v, err := getEnvAsDecimalRequired(d.key, d.def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", d.key, err))
			continue
		}
		if v.IsNegative() {
			errs = append(errs, d.key+" cannot be negative")
		}
		*d.dest = v
	}
	if cfg.AlertWarnRatio.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "ALERT_WARN_RATIO cannot exceed 1")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trader.db")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogPretty = getEnvAsBool("LOG_PRETTY", false)

	// Metrics
	cfg.MetricsNamespace = getEnv("METRICS_NAMESPACE", "papertrader")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 30)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDecimalRequired parses monetary settings without a detour through float64.
func getEnvAsDecimalRequired(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
