package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bot platform core.
type Config struct {
	Port string

	// Database
	DBPath string

	// Profit accrual
	TickInterval time.Duration
	ProfitSeed   int64

	// Ledger integrity sweep
	ReconcileInterval time.Duration

	// Deposit addresses
	AddressSecret string // HMAC key for deterministic address material

	// Templates catalog
	TemplatesPath string

	// Notifications (optional collaborators)
	RedisAddr         string
	RedisChannel      string
	TelegramToken     string
	TelegramChatID    int64
	EnableTelegram    bool
	EnableRedisPubsub bool

	// Referral program
	ReferralBonus float64

	// Auth
	JWTSecret string

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "./data/botcore.db"),
		TickInterval:      getEnvDuration("PROFIT_TICK_INTERVAL", 30*time.Second),
		ProfitSeed:        getEnvInt64("PROFIT_SEED", 1),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		AddressSecret:     os.Getenv("ADDRESS_SECRET"),
		TemplatesPath:     getEnv("TEMPLATES_PATH", "templates.yaml"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisChannel:      getEnv("REDIS_NOTIFY_CHANNEL", "botcore:events"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    getEnvInt64("TELEGRAM_CHAT_ID", 0),
		EnableTelegram:    getEnv("ENABLE_TELEGRAM_NOTIFY", "false") == "true",
		EnableRedisPubsub: getEnv("ENABLE_REDIS_NOTIFY", "false") == "true",
		ReferralBonus:     getEnvFloat("REFERRAL_BONUS", 10.0),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		Language:          getEnv("LANGUAGE", "en"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
