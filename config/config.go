package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoSignalBot/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy"
)

// AcceptableDenominators lists the quote currencies the bot can trade against.
var AcceptableDenominators = []string{"USDT", "TRY"}

// Setting keys shared with the repository's config table.
const (
	KeyDenominator = "denominator"
	KeyOrderAmount = "orderamount"
	KeyExpression  = "expression"
	KeyAllowBuy    = "allowbuy"
	KeyAllowSell   = "allowsell"
	KeyUsername    = "username"
	KeyPassword    = "password"
	KeyPort        = "port"
	KeyTimezone    = "timezone"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Denominator string   // Quote leg shared by every pair (e.g., "USDT")
	Numerators  []string // Base legs evaluated each cycle
	OrderAmount float64  // Buy size in denominator currency
	AllowBuy    bool     // Submit market buys for buy signals
	AllowSell   bool     // Submit market sells for sell signals
	TaxRate     float64  // Tax charged per fill as a fraction of notional

	// Scheduling
	Expression string         // Cron expression driving evaluation cycles
	Timezone   string         // IANA zone the cron expression is evaluated in
	Location   *time.Location // Parsed Timezone

	// Strategy Parameters
	BaseHours       int                      // Ruler window unit in hours
	CrossoverPolicy strategy.CrossoverPolicy // RSI crossover comparison pairing
	CandleLimit     int                      // Candles fetched per pair/timeframe

	// Execution / Reconciliation
	SubmitAttempts  int
	SubmitBackoff   time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	PollMaxFailures int

	// Web layer settings (consumed by the dashboard, stored for it here)
	Username string
	Password string
	Port     int

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Observability / Alerts
	MetricsAddr      string
	TelegramBotToken string
	TelegramChatID   int64
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Trading Parameters
	cfg.Denominator = strings.ToUpper(getEnv("DENOMINATOR", "USDT"))
	if !contains(AcceptableDenominators, cfg.Denominator) {
		errs = append(errs, fmt.Sprintf("DENOMINATOR must be one of %s", strings.Join(AcceptableDenominators, ",")))
	}

	cfg.Numerators = getEnvAsList("NUMERATORS", []string{"BTC", "ETH", "BNB"})
	if len(cfg.Numerators) == 0 {
		errs = append(errs, "NUMERATORS must list at least one asset")
	}
	for _, n := range cfg.Numerators {
		if n == cfg.Denominator {
			errs = append(errs, fmt.Sprintf("NUMERATORS must not contain the denominator %s", n))
		}
	}

	cfg.OrderAmount, err = getEnvAsFloatRequired("ORDER_AMOUNT", 20.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ORDER_AMOUNT: %v", err))
	} else if cfg.OrderAmount <= 0 {
		errs = append(errs, "ORDER_AMOUNT must be positive")
	}

	cfg.AllowBuy = getEnvAsBool("ALLOW_BUY", false)
	cfg.AllowSell = getEnvAsBool("ALLOW_SELL", false)

	cfg.TaxRate, err = getEnvAsFloatRequired("TAX_RATE", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAX_RATE: %v", err))
	} else if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		errs = append(errs, "TAX_RATE must be in [0, 1)")
	}

	// Scheduling
	cfg.Expression = getEnv("CRON_EXPRESSION", "*/3 * * * *")
	if len(strings.Fields(cfg.Expression)) != 5 && !strings.HasPrefix(cfg.Expression, "@") {
		errs = append(errs, "CRON_EXPRESSION must have 5 fields or be a @descriptor")
	}
	cfg.Timezone = getEnv("TIMEZONE", "UTC")
	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE %q: %v", cfg.Timezone, err))
	}

	// Strategy Parameters
	cfg.BaseHours = getEnvAsInt("BASE_HOURS", 1)
	if cfg.BaseHours <= 0 {
		errs = append(errs, "BASE_HOURS must be positive")
	}
	cfg.CrossoverPolicy = strategy.CrossoverPolicy(strings.ToLower(getEnv("CROSSOVER_POLICY", string(strategy.PolicyInclusive))))
	if cfg.CrossoverPolicy != strategy.PolicyInclusive && cfg.CrossoverPolicy != strategy.PolicyStrict {
		errs = append(errs, "CROSSOVER_POLICY must be 'inclusive' or 'strict'")
	}
	cfg.CandleLimit = getEnvAsInt("CANDLE_LIMIT", 1000)
	if cfg.CandleLimit <= 0 || cfg.CandleLimit > 1000 {
		errs = append(errs, "CANDLE_LIMIT must be between 1 and 1000")
	}

	// Execution / Reconciliation
	cfg.SubmitAttempts = getEnvAsInt("SUBMIT_ATTEMPTS", 3)
	if cfg.SubmitAttempts <= 0 {
		errs = append(errs, "SUBMIT_ATTEMPTS must be positive")
	}
	cfg.SubmitBackoff = time.Duration(getEnvAsInt("SUBMIT_BACKOFF_MS", 1000)) * time.Millisecond
	cfg.PollInterval = time.Duration(getEnvAsInt("POLL_INTERVAL_MS", 2500)) * time.Millisecond
	if cfg.SubmitBackoff < 0 || cfg.PollInterval <= 0 {
		errs = append(errs, "SUBMIT_BACKOFF_MS cannot be negative and POLL_INTERVAL_MS must be positive")
	}
	cfg.PollMaxAttempts = getEnvAsInt("POLL_MAX_ATTEMPTS", 240)
	cfg.PollMaxFailures = getEnvAsInt("POLL_MAX_FAILURES", 10)
	if cfg.PollMaxAttempts <= 0 || cfg.PollMaxFailures <= 0 {
		errs = append(errs, "POLL_MAX_ATTEMPTS and POLL_MAX_FAILURES must be positive")
	}

	// Web layer
	cfg.Username = getEnv("USERNAME", "admin")
	cfg.Password = getEnv("PASSWORD", "")
	cfg.Port = getEnvAsInt("PORT", 8080)
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, "PORT must be between 1 and 65535")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/signal_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Observability / Alerts
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TELEGRAM_CHAT_ID: %v", err))
		}
		cfg.TelegramChatID = id
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfiguration, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Settings returns the named options persisted to the repository's config table.
func (c *Config) Settings() map[string]string {
	return map[string]string{
		KeyDenominator: c.Denominator,
		KeyOrderAmount: strconv.FormatFloat(c.OrderAmount, 'f', -1, 64),
		KeyExpression:  c.Expression,
		KeyAllowBuy:    strconv.FormatBool(c.AllowBuy),
		KeyAllowSell:   strconv.FormatBool(c.AllowSell),
		KeyUsername:    c.Username,
		KeyPassword:    c.Password,
		KeyPort:        strconv.Itoa(c.Port),
		KeyTimezone:    c.Timezone,
	}
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

// getEnvAsList splits a comma-separated value into upper-cased, de-duplicated items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item == "" || contains(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
