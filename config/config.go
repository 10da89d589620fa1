package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// History storage backends.
const (
	HistoryBackendNone  = "none"
	HistoryBackendGist  = "gist"
	HistoryBackendRedis = "redis"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Discord
	Discord DiscordConfig `json:"discord"`

	// Telegram
	Telegram TelegramConfig `json:"telegram"`

	// Prediction feed polling
	Feed FeedConfig `json:"feed"`

	// Chat alerts
	Alerts AlertsConfig `json:"alerts"`

	// Resolved prediction archive
	History HistoryConfig `json:"history"`

	// Redis - connection details are env var only
	Redis RedisConfig `json:"redis"`

	// GitHub Gist - excluded from settings (env var only)
	Gist GistConfig `json:"-"`

	// View server
	Server ServerConfig `json:"server"`

	// Logging
	Log LogConfig `json:"log"`
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string `json:"-"` // Excluded - env var only
	ProdChannelID string `json:"prod_channel_id"`
	BetaChannelID string `json:"beta_channel_id"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken   string `json:"-"` // Excluded - env var only
	ProdChatID string `json:"prod_chat_id"`
	BetaChatID string `json:"beta_chat_id"`
	APIBaseURL string `json:"api_base_url"`
}

// FeedConfig holds prediction API and polling configuration.
type FeedConfig struct {
	BaseURL              string        `json:"base_url"`
	SessionID            string        `json:"-"` // Excluded - env var only
	StatsInterval        time.Duration `json:"stats_interval"`
	HistoryInterval      time.Duration `json:"history_interval"`
	HistoryLimit         int           `json:"history_limit"`
	ExtendedHistoryLimit int           `json:"extended_history_limit"`
	RequestTimeout       time.Duration `json:"request_timeout"`
	BackoffMin           time.Duration `json:"backoff_min"`
	BackoffMax           time.Duration `json:"backoff_max"`
	LogoutOnExit         bool          `json:"logout_on_exit"`
}

// AlertsConfig controls which feed transitions are pushed to chat.
type AlertsConfig struct {
	NewPrediction bool `json:"new_prediction"`
	Resolution    bool `json:"resolution"`
	MaxTracked    int  `json:"max_tracked"` // Bound on remembered (game, kind) pairs
}

// HistoryConfig holds resolved prediction archive configuration.
type HistoryConfig struct {
	Backend      string        `json:"backend"` // none, gist or redis
	GistID       string        `json:"-"`       // Excluded - env var only
	FileName     string        `json:"file_name"`
	SaveInterval time.Duration `json:"save_interval"`
	MaxEntries   int           `json:"max_entries"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string `json:"-"` // Excluded - env var only
	Password  string `json:"-"` // Excluded - env var only
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// GistConfig holds GitHub Gist configuration.
type GistConfig struct {
	Token          string `json:"-"` // Excluded - env var only
	SettingsGistID string `json:"-"` // Excluded - env var only
	APIBaseURL     string `json:"-"`
}

// ServerConfig holds view/health server configuration.
type ServerConfig struct {
	Enabled      bool          `json:"enabled"`
	Port         int           `json:"port"`
	PushInterval time.Duration `json:"push_interval"`
	AdminToken   string        `json:"-"` // Excluded - env var only; empty disables settings writes
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level    string `json:"level"`
	Encoding string `json:"encoding"` // json or console
}

// Clone creates a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ToJSON serializes the config to JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ConfigFromJSON deserializes JSON into a config, merging with base.
func ConfigFromJSON(data []byte, base *Config) (*Config, error) {
	if base == nil {
		base = Defaults()
	}
	cfg := base.Clone()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd:   false,
		Discord:  DiscordConfig{},
		Telegram: TelegramConfig{
			APIBaseURL: "https://api.telegram.org",
		},
		Feed: FeedConfig{
			BaseURL:              "http://localhost:8000",
			StatsInterval:        3 * time.Second,
			HistoryInterval:      30 * time.Second,
			HistoryLimit:         10,
			ExtendedHistoryLimit: 20,
			RequestTimeout:       10 * time.Second,
			BackoffMin:           3 * time.Second,
			BackoffMax:           2 * time.Minute,
		},
		Alerts: AlertsConfig{
			NewPrediction: true,
			Resolution:    true,
			MaxTracked:    500,
		},
		History: HistoryConfig{
			Backend:      HistoryBackendGist,
			FileName:     "prediction_history.json",
			SaveInterval: 5 * time.Minute,
			MaxEntries:   500,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "suitfeed",
		},
		Gist: GistConfig{
			APIBaseURL: "https://api.github.com",
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8080,
			PushInterval: 1 * time.Second,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Discord: DiscordConfig{
			BotToken:      envString("DISCORD_BOT_TOKEN", ""),
			ProdChannelID: envString("DISCORD_PROD_CHANNEL_ID", ""),
			BetaChannelID: envString("DISCORD_BETA_CHANNEL_ID", ""),
		},

		Telegram: TelegramConfig{
			BotToken:   envString("TELEGRAM_BOT_KEY", ""),
			ProdChatID: envString("TELEGRAM_PROD_CHAT_ID", ""),
			BetaChatID: envString("TELEGRAM_BETA_CHAT_ID", ""),
			APIBaseURL: envString("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		},

		Feed: FeedConfig{
			BaseURL:              strings.TrimRight(envString("FEED_BASE_URL", "http://localhost:8000"), "/"),
			SessionID:            envString("FEED_SESSION_ID", ""),
			StatsInterval:        envDuration("FEED_STATS_INTERVAL", 3*time.Second),
			HistoryInterval:      envDuration("FEED_HISTORY_INTERVAL", 30*time.Second),
			HistoryLimit:         envInt("FEED_HISTORY_LIMIT", 10),
			ExtendedHistoryLimit: envInt("FEED_EXTENDED_HISTORY_LIMIT", 20),
			RequestTimeout:       envDuration("FEED_REQUEST_TIMEOUT", 10*time.Second),
			BackoffMin:           envDuration("FEED_BACKOFF_MIN", 3*time.Second),
			BackoffMax:           envDuration("FEED_BACKOFF_MAX", 2*time.Minute),
			LogoutOnExit:         envBoolDefault("FEED_LOGOUT_ON_EXIT", false),
		},

		Alerts: AlertsConfig{
			NewPrediction: envBoolDefault("ALERT_NEW_PREDICTION", true),
			Resolution:    envBoolDefault("ALERT_RESOLUTION", true),
			MaxTracked:    envInt("ALERT_MAX_TRACKED", 500),
		},

		History: HistoryConfig{
			Backend:      strings.ToLower(envString("HISTORY_BACKEND", HistoryBackendGist)),
			GistID:       envString("HISTORY_GIST_ID", ""),
			FileName:     envString("HISTORY_FILE_NAME", "prediction_history.json"),
			SaveInterval: envDuration("HISTORY_SAVE_INTERVAL", 5*time.Minute),
			MaxEntries:   envInt("HISTORY_MAX_ENTRIES", 500),
		},

		Redis: RedisConfig{
			Addr:      envString("REDIS_ADDR", "localhost:6379"),
			Password:  envString("REDIS_PASSWORD", ""),
			DB:        envInt("REDIS_DB", 0),
			KeyPrefix: envString("REDIS_KEY_PREFIX", "suitfeed"),
		},

		Gist: GistConfig{
			Token:          envString("GITHUB_TOKEN", ""),
			SettingsGistID: envString("SETTINGS_GIST_ID", ""),
			APIBaseURL:     envString("GITHUB_API_BASE_URL", "https://api.github.com"),
		},

		Server: ServerConfig{
			Enabled:      envBoolDefault("SERVER_ENABLED", true),
			Port:         envInt("SERVER_PORT", 8080),
			PushInterval: envDuration("SERVER_PUSH_INTERVAL", 1*time.Second),
			AdminToken:   envString("SERVER_ADMIN_TOKEN", ""),
		},

		Log: LogConfig{
			Level:    envString("LOG_LEVEL", "info"),
			Encoding: envString("LOG_ENCODING", "json"),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}
