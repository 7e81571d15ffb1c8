package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string

	// Market data
	FeedURL     string
	RESTBaseURL string

	// Default instrument set (comma-separated codes, e.g. "KRW-BTC,KRW-ETH")
	Instruments string

	// Notifications (optional; webhook wins when both are set)
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Auto-trading loop interval in seconds
	AutoTradeIntervalSec int

	// Paper account parameters
	StartingBalance float64
	FeeRate         float64

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/papertrader.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		FeedURL:     getEnv("FEED_URL", "wss://api.upbit.com/websocket/v1"),
		RESTBaseURL: getEnv("REST_BASE_URL", "https://api.upbit.com/v1"),

		Instruments: getEnv("INSTRUMENTS", "KRW-BTC,KRW-ETH"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		AutoTradeIntervalSec: getEnvInt("AUTOTRADE_INTERVAL_SEC", 30),

		StartingBalance: getEnvFloat("STARTING_BALANCE", 10_000_000),
		FeeRate:         getEnvFloat("FEE_RATE", 0.0005),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseInstruments splits the Instruments string into instrument codes.
func (c *Config) ParseInstruments() []string {
	parts := strings.Split(c.Instruments, ",")
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		codes = append(codes, p)
	}
	return codes
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
