package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/debatekeeper/internal/flagx"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. Durations are plain integer seconds; after unmarshalling, its fields
// are copied into the runtime Config struct.
type JsonConfig struct {
	DatabaseDSN        string `json:"database_dsn"`
	TelegramToken      string `json:"telegram_token"`
	TelegramAPIBase    string `json:"telegram_api_base"`
	MasterSecret       string `json:"master_secret"`
	DefaultQuota       int    `json:"default_quota"`
	MaxRounds          int    `json:"max_rounds"`
	MinSecretLength    int    `json:"min_secret_length"`
	HTTPAddr           string `json:"http_addr"`
	PollTimeoutSeconds int    `json:"poll_timeout_seconds"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. Only fields present in
// the file override the current values. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.TelegramToken != "" {
		config.TelegramToken = c.TelegramToken
	}
	if c.TelegramAPIBase != "" {
		config.TelegramAPIBase = c.TelegramAPIBase
	}
	if c.MasterSecret != "" {
		config.MasterSecret = c.MasterSecret
	}
	if c.DefaultQuota > 0 {
		config.DefaultQuota = c.DefaultQuota
	}
	if c.MaxRounds > 0 {
		config.MaxRounds = c.MaxRounds
	}
	if c.MinSecretLength > 0 {
		config.MinSecretLength = c.MinSecretLength
	}
	if c.HTTPAddr != "" {
		config.HTTPAddr = c.HTTPAddr
	}
	if c.PollTimeoutSeconds > 0 {
		config.PollTimeout = time.Duration(c.PollTimeoutSeconds) * time.Second
	}
}
