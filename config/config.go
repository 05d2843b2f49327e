package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoPaperTrader/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Binance API, public endpoints only
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Paper account
	AccountCurrency string
	AccountBalance  float64
	Unlimited       bool

	// Markets
	Markets             []string
	Leverage            float64
	MakerFee            float64
	TakerFee            float64
	IndivisiblePosition bool

	// Trade management
	ModifyOrderTimeout float64 // seconds between two protective order amendments
	CommentPolicy      string  // "truncate" or "reject"
	EntryTimeout       float64 // seconds, 0 never
	TradeExpiry        float64 // seconds, 0 never
	StopLossPercent    float64
	TakeProfitPercent  float64
	TradeQuantity      float64

	// Session loop
	UpdateInterval  time.Duration
	PersistInterval time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Notification hub, empty disables it
	NotifyWSAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []error

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_SECRET_KEY", "")
	cfg.IsTestnet = getEnvAsBool("USE_TESTNET", false)

	cfg.AccountCurrency = getEnv("ACCOUNT_CURRENCY", "USDT")
	cfg.AccountBalance, err = getEnvAsFloatRequired("ACCOUNT_BALANCE", 10000)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.AccountBalance < 0 {
		errs = append(errs, errors.New("ACCOUNT_BALANCE cannot be negative"))
	}
	cfg.Unlimited = getEnvAsBool("PAPER_UNLIMITED", false)

	cfg.Markets = splitList(getEnv("MARKETS", "BTCUSDT"))
	if len(cfg.Markets) == 0 {
		errs = append(errs, errors.New("MARKETS must list at least one market"))
	}

	cfg.Leverage, err = getEnvAsFloatRequired("LEVERAGE", 10)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.Leverage <= 0 {
		errs = append(errs, errors.New("LEVERAGE must be positive"))
	}

	cfg.MakerFee = getEnvAsFloat("MAKER_FEE", 0.0002)
	cfg.TakerFee = getEnvAsFloat("TAKER_FEE", 0.0004)
	if cfg.MakerFee < 0 || cfg.TakerFee < 0 {
		errs = append(errs, errors.New("MAKER_FEE and TAKER_FEE cannot be negative"))
	}
	cfg.IndivisiblePosition = getEnvAsBool("INDIVISIBLE_POSITION", true)

	cfg.ModifyOrderTimeout = getEnvAsFloat("MODIFY_ORDER_TIMEOUT", 10)
	cfg.CommentPolicy = strings.ToLower(getEnv("COMMENT_POLICY", "reject"))
	if cfg.CommentPolicy != "reject" && cfg.CommentPolicy != "truncate" {
		errs = append(errs, fmt.Errorf("COMMENT_POLICY must be truncate or reject, got %q", cfg.CommentPolicy))
	}
	cfg.EntryTimeout = getEnvAsFloat("ENTRY_TIMEOUT", 0)
	cfg.TradeExpiry = getEnvAsFloat("TRADE_EXPIRY", 0)
	if cfg.EntryTimeout < 0 || cfg.TradeExpiry < 0 {
		errs = append(errs, errors.New("ENTRY_TIMEOUT and TRADE_EXPIRY cannot be negative"))
	}

	cfg.StopLossPercent, err = getEnvAsFloatRequired("STOP_LOSS_PERCENT", 0.01)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.StopLossPercent < 0 || cfg.StopLossPercent >= 1.0 {
		errs = append(errs, errors.New("STOP_LOSS_PERCENT must be between 0.0 (inclusive) and 1.0"))
	}
	cfg.TakeProfitPercent, err = getEnvAsFloatRequired("TAKE_PROFIT_PERCENT", 0.02)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.TakeProfitPercent < 0 {
		errs = append(errs, errors.New("TAKE_PROFIT_PERCENT cannot be negative"))
	}
	cfg.TradeQuantity, err = getEnvAsFloatRequired("TRADE_QUANTITY", 0.01)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.TradeQuantity <= 0 {
		errs = append(errs, errors.New("TRADE_QUANTITY must be positive"))
	}

	cfg.UpdateInterval, err = getEnvAsDuration("UPDATE_INTERVAL", time.Second)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.PersistInterval, err = getEnvAsDuration("PERSIST_INTERVAL", time.Minute)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trader.db")

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	cfg.ReconnectDelay, err = getEnvAsDuration("RECONNECT_DELAY", 5*time.Second)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("RECONNECT_DELAY must be positive"))
	}
	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("MAX_RECONNECT_ATTEMPTS cannot be negative"))
	}

	cfg.NotifyWSAddr = getEnv("NOTIFY_WS_ADDR", "")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
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

// getEnvAsDuration accepts a Go duration ("1500ms") or a number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s", valueStr, key)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
