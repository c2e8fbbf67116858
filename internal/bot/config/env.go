package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays Config fields from environment variables. Unset or
// malformed variables leave the current value untouched.
//
// Recognized variables:
//
//	DATABASE_DSN          PostgreSQL DSN
//	TELEGRAM_BOT_TOKEN    Bot API token
//	TELEGRAM_API_BASE     Bot API base URL
//	MASTER_SECRET         credential encryption secret
//	DEFAULT_QUOTA         calls granted to a new credential
//	MAX_ROUNDS            default debate length
//	MIN_SECRET_LENGTH     shortest accepted API key
//	HTTP_ADDR             ops endpoint bind address
//	POLL_TIMEOUT          update long-poll window, e.g. "30s"
func parseEnv(config *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_API_BASE"); v != "" {
		config.TelegramAPIBase = v
	}
	if v := os.Getenv("MASTER_SECRET"); v != "" {
		config.MasterSecret = v
	}
	if v := getEnvInt("DEFAULT_QUOTA"); v > 0 {
		config.DefaultQuota = v
	}
	if v := getEnvInt("MAX_ROUNDS"); v > 0 {
		config.MaxRounds = v
	}
	if v := getEnvInt("MIN_SECRET_LENGTH"); v > 0 {
		config.MinSecretLength = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		config.HTTPAddr = v
	}
	if v := os.Getenv("POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.PollTimeout = d
		}
	}
}

func getEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return i
}
