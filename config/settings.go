package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SettingsFileName is the name of the settings file in the Gist.
const SettingsFileName = "suitfeed_settings.json"

// ErrSettingsDisabled is returned when no settings gist is configured.
var ErrSettingsDisabled = errors.New("settings gist not configured")

// SettingsSnapshot is the document stored in the settings Gist.
type SettingsSnapshot struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Config    *Config   `json:"config"`
}

// GistStorage is the subset of the gist client the settings layer needs.
type GistStorage interface {
	IsEnabled() bool
	LoadJSON(ctx context.Context, filename string, dest any) error
	SaveJSON(ctx context.Context, filename string, data any) error
	GetGistID() string
}

// SettingsManager overlays Gist-stored settings on top of env config and
// persists runtime changes back.
type SettingsManager struct {
	logger     *zap.Logger
	gist       GistStorage
	liveConfig *LiveConfig
}

// NewSettingsManager creates a new SettingsManager. gist may be nil.
func NewSettingsManager(logger *zap.Logger, gist GistStorage, liveConfig *LiveConfig) *SettingsManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsManager{
		logger:     logger,
		gist:       gist,
		liveConfig: liveConfig,
	}
}

// IsEnabled returns true if settings persistence is available.
func (sm *SettingsManager) IsEnabled() bool {
	return sm.gist != nil && sm.gist.IsEnabled()
}

// LoadSettings resolves the effective config.
// Priority: Gist > Environment Variables > Defaults
func (sm *SettingsManager) LoadSettings(ctx context.Context, envConfig *Config) *Config {
	baseConfig := Defaults()
	if envConfig != nil {
		baseConfig = mergeConfigs(baseConfig, envConfig)
	}

	if !sm.IsEnabled() {
		sm.logger.Info("settings gist not configured, using env/defaults")
		return baseConfig
	}

	// Decoding into a pre-filled config keeps fields the document omits.
	snapshot := SettingsSnapshot{Config: baseConfig.Clone()}
	if err := sm.gist.LoadJSON(ctx, SettingsFileName, &snapshot); err != nil {
		sm.logger.Warn("failed to load settings from gist, using env/defaults", zap.Error(err))
		return baseConfig
	}

	if snapshot.Config == nil {
		return baseConfig
	}

	merged := mergeConfigs(baseConfig, snapshot.Config)
	if result := merged.Validate(); !result.Valid {
		sm.logger.Warn("gist settings are invalid, ignoring",
			zap.Int("errors", len(result.Errors)),
			zap.String("first_field", result.Errors[0].Field),
		)
		return baseConfig
	}

	sm.logger.Info("loaded settings from gist",
		zap.Time("updated_at", snapshot.UpdatedAt),
		zap.Int("version", snapshot.Version),
	)
	return merged
}

// SaveSettings writes the current live config to the Gist.
func (sm *SettingsManager) SaveSettings(ctx context.Context) error {
	if !sm.IsEnabled() {
		return ErrSettingsDisabled
	}

	snapshot := SettingsSnapshot{
		Version:   sm.liveConfig.Version(),
		UpdatedAt: time.Now().UTC(),
		Config:    sm.liveConfig.Get(),
	}

	if err := sm.gist.SaveJSON(ctx, SettingsFileName, snapshot); err != nil {
		return fmt.Errorf("save to gist: %w", err)
	}

	sm.logger.Info("saved settings to gist", zap.Int("version", snapshot.Version))
	return nil
}

// UpdateAndSave validates and applies newConfig, then persists it when
// possible. A failed save is logged, not returned.
func (sm *SettingsManager) UpdateAndSave(ctx context.Context, newConfig *Config) error {
	if err := sm.liveConfig.Update(newConfig); err != nil {
		return fmt.Errorf("update config: %w", err)
	}

	if sm.IsEnabled() {
		if err := sm.SaveSettings(ctx); err != nil {
			sm.logger.Error("failed to save settings to gist", zap.Error(err))
		}
	}
	return nil
}

// ApplyJSON merges a partial JSON document into the live config and saves it.
func (sm *SettingsManager) ApplyJSON(ctx context.Context, data []byte) (*Config, error) {
	next, err := ConfigFromJSON(data, sm.liveConfig.Get())
	if err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := sm.UpdateAndSave(ctx, next); err != nil {
		return nil, err
	}
	return sm.liveConfig.Get(), nil
}

// GetLiveConfig returns the LiveConfig for observers to register.
func (sm *SettingsManager) GetLiveConfig() *LiveConfig {
	return sm.liveConfig
}

// mergeConfigs lays overlay onto base through a JSON round trip, then
// restores the env-only fields the JSON form leaves out.
func mergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = Defaults()
	}
	if overlay == nil {
		return base.Clone()
	}

	result := base.Clone()
	overlayJSON, err := json.Marshal(overlay)
	if err != nil {
		return result
	}
	_ = json.Unmarshal(overlayJSON, result)

	result.Discord.BotToken = firstNonEmpty(overlay.Discord.BotToken, base.Discord.BotToken)
	result.Telegram.BotToken = firstNonEmpty(overlay.Telegram.BotToken, base.Telegram.BotToken)
	result.Feed.SessionID = firstNonEmpty(overlay.Feed.SessionID, base.Feed.SessionID)
	result.History.GistID = firstNonEmpty(overlay.History.GistID, base.History.GistID)
	result.Redis.Addr = firstNonEmpty(overlay.Redis.Addr, base.Redis.Addr)
	result.Redis.Password = firstNonEmpty(overlay.Redis.Password, base.Redis.Password)
	result.Gist.Token = firstNonEmpty(overlay.Gist.Token, base.Gist.Token)
	result.Gist.SettingsGistID = firstNonEmpty(overlay.Gist.SettingsGistID, base.Gist.SettingsGistID)
	result.Gist.APIBaseURL = firstNonEmpty(overlay.Gist.APIBaseURL, base.Gist.APIBaseURL)
	result.Server.AdminToken = firstNonEmpty(overlay.Server.AdminToken, base.Server.AdminToken)

	return result
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SettingsInfo provides metadata about the current settings state.
type SettingsInfo struct {
	Source      string    `json:"source"` // "gist" or "env"
	LastUpdated time.Time `json:"last_updated"`
	Version     int       `json:"version"`
	GistEnabled bool      `json:"gist_enabled"`
	GistID      string    `json:"gist_id,omitempty"`
	IsValid     bool      `json:"is_valid"`
	Errors      []string  `json:"errors,omitempty"`
}

// GetSettingsInfo returns metadata about the current settings.
func (sm *SettingsManager) GetSettingsInfo() SettingsInfo {
	validation := sm.liveConfig.Get().Validate()

	info := SettingsInfo{
		Source:      "env",
		LastUpdated: sm.liveConfig.LastUpdated(),
		Version:     sm.liveConfig.Version(),
		GistEnabled: sm.IsEnabled(),
		IsValid:     validation.Valid,
	}
	if info.GistEnabled {
		info.Source = "gist"
		info.GistID = sm.gist.GetGistID()
	}
	for _, e := range validation.Errors {
		info.Errors = append(info.Errors, e.Field+": "+e.Message)
	}
	return info
}
