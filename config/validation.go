package config

import (
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateFeed(&c.Feed)...)
	errors = append(errors, validateAlerts(&c.Alerts)...)
	errors = append(errors, validateHistory(&c.History)...)
	errors = append(errors, validateServer(&c.Server)...)
	errors = append(errors, validateLog(&c.Log)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateFeed(f *FeedConfig) []ValidationError {
	var errors []ValidationError

	if u, err := url.Parse(f.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "feed.base_url",
			Message: "must be an absolute URL",
		})
	}

	if f.StatsInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "feed.stats_interval",
			Message: "must be at least 1 second",
		})
	}

	if f.HistoryInterval < f.StatsInterval {
		errors = append(errors, ValidationError{
			Field:   "feed.history_interval",
			Message: "must not be shorter than stats_interval",
		})
	}

	if f.HistoryLimit < 1 || f.HistoryLimit > 100 {
		errors = append(errors, ValidationError{
			Field:   "feed.history_limit",
			Message: "must be between 1 and 100",
		})
	}

	if f.ExtendedHistoryLimit < f.HistoryLimit || f.ExtendedHistoryLimit > 100 {
		errors = append(errors, ValidationError{
			Field:   "feed.extended_history_limit",
			Message: fmt.Sprintf("must be between history_limit (%d) and 100", f.HistoryLimit),
		})
	}

	if f.RequestTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "feed.request_timeout",
			Message: "must be at least 1 second",
		})
	}

	if f.BackoffMin <= 0 {
		errors = append(errors, ValidationError{
			Field:   "feed.backoff_min",
			Message: "must be positive",
		})
	}

	if f.BackoffMax < f.BackoffMin {
		errors = append(errors, ValidationError{
			Field:   "feed.backoff_max",
			Message: "must not be shorter than backoff_min",
		})
	}

	return errors
}

func validateAlerts(a *AlertsConfig) []ValidationError {
	var errors []ValidationError

	if a.MaxTracked < 10 {
		errors = append(errors, ValidationError{
			Field:   "alerts.max_tracked",
			Message: "must be at least 10",
		})
	}

	return errors
}

func validateHistory(h *HistoryConfig) []ValidationError {
	var errors []ValidationError

	switch h.Backend {
	case HistoryBackendNone, HistoryBackendGist, HistoryBackendRedis:
	default:
		errors = append(errors, ValidationError{
			Field:   "history.backend",
			Message: "must be one of none, gist, redis",
		})
	}

	if h.FileName == "" {
		errors = append(errors, ValidationError{
			Field:   "history.file_name",
			Message: "must not be empty",
		})
	}

	if h.SaveInterval < 10*time.Second {
		errors = append(errors, ValidationError{
			Field:   "history.save_interval",
			Message: "must be at least 10 seconds",
		})
	}

	if h.MaxEntries < 1 {
		errors = append(errors, ValidationError{
			Field:   "history.max_entries",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateServer(s *ServerConfig) []ValidationError {
	var errors []ValidationError

	if s.Port < 1 || s.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if s.PushInterval < 100*time.Millisecond {
		errors = append(errors, ValidationError{
			Field:   "server.push_interval",
			Message: "must be at least 100 milliseconds",
		})
	}

	return errors
}

func validateLog(l *LogConfig) []ValidationError {
	var errors []ValidationError

	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: "must be a zap level (debug, info, warn, error)",
		})
	}

	if l.Encoding != "json" && l.Encoding != "console" {
		errors = append(errors, ValidationError{
			Field:   "log.encoding",
			Message: "must be json or console",
		})
	}

	return errors
}
