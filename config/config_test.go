package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"STAGE", "DISCORD_BOT_TOKEN", "TELEGRAM_BOT_KEY",
		"FEED_BASE_URL", "FEED_SESSION_ID", "FEED_STATS_INTERVAL", "FEED_HISTORY_INTERVAL",
		"FEED_HISTORY_LIMIT", "FEED_EXTENDED_HISTORY_LIMIT", "FEED_LOGOUT_ON_EXIT",
		"HISTORY_BACKEND", "HISTORY_MAX_ENTRIES", "REDIS_ADDR", "GITHUB_TOKEN",
		"SERVER_ENABLED", "SERVER_PORT", "SERVER_ADMIN_TOKEN", "LOG_LEVEL", "LOG_ENCODING",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.IsProd {
		t.Error("expected IsProd to be false by default")
	}
	if cfg.Feed.BaseURL != "http://localhost:8000" {
		t.Errorf("unexpected base URL: %s", cfg.Feed.BaseURL)
	}
	if cfg.Feed.SessionID != "" {
		t.Error("expected empty session by default")
	}
	if cfg.Feed.StatsInterval != 3*time.Second {
		t.Errorf("unexpected stats interval: %v", cfg.Feed.StatsInterval)
	}
	if cfg.Feed.HistoryInterval != 30*time.Second {
		t.Errorf("unexpected history interval: %v", cfg.Feed.HistoryInterval)
	}
	if cfg.Feed.HistoryLimit != 10 || cfg.Feed.ExtendedHistoryLimit != 20 {
		t.Errorf("unexpected limits: %d/%d", cfg.Feed.HistoryLimit, cfg.Feed.ExtendedHistoryLimit)
	}
	if cfg.Feed.LogoutOnExit {
		t.Error("expected logout on exit to be off by default")
	}
	if cfg.History.Backend != HistoryBackendGist {
		t.Errorf("unexpected backend: %s", cfg.History.Backend)
	}
	if cfg.History.MaxEntries != 500 {
		t.Errorf("unexpected max entries: %d", cfg.History.MaxEntries)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 8080 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Log.Level != "info" || cfg.Log.Encoding != "json" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}

	if result := cfg.Validate(); !result.Valid {
		t.Errorf("expected env defaults to validate, got %+v", result.Errors)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STAGE", "prod")
	t.Setenv("FEED_BASE_URL", "https://predictions.example.com/")
	t.Setenv("FEED_SESSION_ID", "abc123")
	t.Setenv("FEED_STATS_INTERVAL", "5s")
	t.Setenv("FEED_HISTORY_INTERVAL", "1m")
	t.Setenv("FEED_HISTORY_LIMIT", "12")
	t.Setenv("FEED_LOGOUT_ON_EXIT", "yes")
	t.Setenv("HISTORY_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ALERT_NEW_PREDICTION", "false")
	t.Setenv("LOG_ENCODING", "console")

	cfg := Load()

	if !cfg.IsProd {
		t.Error("expected IsProd")
	}
	if cfg.Feed.BaseURL != "https://predictions.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Feed.BaseURL)
	}
	if cfg.Feed.SessionID != "abc123" {
		t.Errorf("unexpected session: %s", cfg.Feed.SessionID)
	}
	if cfg.Feed.StatsInterval != 5*time.Second || cfg.Feed.HistoryInterval != time.Minute {
		t.Errorf("unexpected intervals: %v/%v", cfg.Feed.StatsInterval, cfg.Feed.HistoryInterval)
	}
	if cfg.Feed.HistoryLimit != 12 {
		t.Errorf("unexpected history limit: %d", cfg.Feed.HistoryLimit)
	}
	if !cfg.Feed.LogoutOnExit {
		t.Error("expected logout on exit")
	}
	if cfg.History.Backend != HistoryBackendRedis {
		t.Errorf("unexpected backend: %s", cfg.History.Backend)
	}
	if cfg.Redis.Addr != "cache:6380" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Alerts.NewPrediction {
		t.Error("expected new prediction alerts disabled")
	}
	if cfg.Log.Encoding != "console" {
		t.Errorf("unexpected encoding: %s", cfg.Log.Encoding)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "  trimmed  ")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INVALID_INT", "not-a-number")
	t.Setenv("TEST_DURATION", "5m30s")
	t.Setenv("TEST_BOOL", "1")

	if v := envString("TEST_STRING", "default"); v != "trimmed" {
		t.Errorf("expected 'trimmed', got '%s'", v)
	}
	if v := envString("NONEXISTENT", "default"); v != "default" {
		t.Errorf("expected 'default', got '%s'", v)
	}
	if v := envInt("TEST_INT", 0); v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
	if v := envInt("TEST_INVALID_INT", 50); v != 50 {
		t.Errorf("expected 50 for invalid int, got %d", v)
	}
	if v := envDuration("TEST_DURATION", 0); v != 5*time.Minute+30*time.Second {
		t.Errorf("unexpected duration: %v", v)
	}
	if !envBoolDefault("TEST_BOOL", false) {
		t.Error("expected true for '1'")
	}
	if !envBoolDefault("NONEXISTENT", true) {
		t.Error("expected default true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"relative base url", func(c *Config) { c.Feed.BaseURL = "/api" }, "feed.base_url"},
		{"stats interval too short", func(c *Config) { c.Feed.StatsInterval = 100 * time.Millisecond }, "feed.stats_interval"},
		{"history faster than stats", func(c *Config) { c.Feed.HistoryInterval = time.Second }, "feed.history_interval"},
		{"history limit zero", func(c *Config) { c.Feed.HistoryLimit = 0 }, "feed.history_limit"},
		{"extended below short", func(c *Config) { c.Feed.ExtendedHistoryLimit = 5 }, "feed.extended_history_limit"},
		{"backoff inverted", func(c *Config) { c.Feed.BackoffMax = time.Second }, "feed.backoff_max"},
		{"unknown backend", func(c *Config) { c.History.Backend = "s3" }, "history.backend"},
		{"empty file name", func(c *Config) { c.History.FileName = "" }, "history.file_name"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad encoding", func(c *Config) { c.Log.Encoding = "xml" }, "log.encoding"},
	}

	if result := Defaults().Validate(); !result.Valid {
		t.Fatalf("expected defaults to validate, got %+v", result.Errors)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)
			result := cfg.Validate()
			if result.Valid {
				t.Fatal("expected validation failure")
			}
			found := false
			for _, e := range result.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %+v", tt.field, result.Errors)
			}
		})
	}
}

func TestConfigFromJSON(t *testing.T) {
	base := Defaults()
	base.Feed.SessionID = "secret"

	cfg, err := ConfigFromJSON([]byte(`{"feed":{"history_limit":12}}`), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Feed.HistoryLimit != 12 {
		t.Errorf("unexpected history limit: %d", cfg.Feed.HistoryLimit)
	}
	if cfg.Feed.StatsInterval != 3*time.Second {
		t.Errorf("expected untouched stats interval, got %v", cfg.Feed.StatsInterval)
	}
	if cfg.Feed.SessionID != "secret" {
		t.Error("expected session to survive merge")
	}
	if base.Feed.HistoryLimit != 10 {
		t.Error("expected base to be unmodified")
	}

	if _, err := ConfigFromJSON([]byte(`{`), base); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestToJSON_OmitsSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.SessionID = "session-secret"
	cfg.Discord.BotToken = "discord-secret"
	cfg.Redis.Password = "redis-secret"

	data, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, secret := range []string{"session-secret", "discord-secret", "redis-secret"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("secret %q leaked into json", secret)
		}
	}
	if _, ok := raw["gist"]; ok {
		t.Error("expected gist section to be omitted")
	}
}

type recordingObserver struct {
	got []*Config
}

func (r *recordingObserver) OnConfigUpdate(cfg *Config) {
	r.got = append(r.got, cfg)
}

func TestLiveConfig_Update(t *testing.T) {
	lc := NewLiveConfig(nil)
	obs := &recordingObserver{}
	lc.AddObserver(obs)
	lc.AddObserver(nil)

	if lc.Version() != 1 {
		t.Errorf("unexpected initial version: %d", lc.Version())
	}

	err := lc.UpdatePartial(func(c *Config) { c.Feed.HistoryLimit = 15 })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.Get().Feed.HistoryLimit != 15 {
		t.Errorf("unexpected history limit: %d", lc.Get().Feed.HistoryLimit)
	}
	if lc.Version() != 2 {
		t.Errorf("unexpected version: %d", lc.Version())
	}
	if len(obs.got) != 1 || obs.got[0].Feed.HistoryLimit != 15 {
		t.Errorf("unexpected observer calls: %d", len(obs.got))
	}

	// Observers get their own copy.
	obs.got[0].Feed.HistoryLimit = 99
	if lc.Get().Feed.HistoryLimit != 15 {
		t.Error("observer mutation leaked into live config")
	}
}

func TestLiveConfig_RejectsInvalid(t *testing.T) {
	lc := NewLiveConfig(Defaults())
	var calls int
	lc.AddObserver(ObserverFunc(func(*Config) { calls++ }))

	err := lc.UpdatePartial(func(c *Config) { c.Server.Port = 0 })
	var verr *ConfigValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Errors[0].Field != "server.port" {
		t.Errorf("unexpected field: %s", verr.Errors[0].Field)
	}
	if calls != 0 {
		t.Errorf("expected no notifications, got %d", calls)
	}
	if lc.Get().Server.Port != 8080 {
		t.Error("expected config unchanged")
	}
	if lc.Update(nil) != nil {
		t.Error("expected nil update to be a no-op")
	}
}

type mockGist struct {
	enabled bool
	files   map[string][]byte
	loadErr error
	saves   int
}

func (m *mockGist) IsEnabled() bool   { return m.enabled }
func (m *mockGist) GetGistID() string { return "settings-gist" }

func (m *mockGist) LoadJSON(ctx context.Context, filename string, dest any) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	data, ok := m.files[filename]
	if !ok {
		return errors.New("file not found")
	}
	return json.Unmarshal(data, dest)
}

func (m *mockGist) SaveJSON(ctx context.Context, filename string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[filename] = b
	m.saves++
	return nil
}

func TestSettingsManager_LoadSettings(t *testing.T) {
	env := Defaults()
	env.Feed.SessionID = "env-session"
	env.Feed.HistoryLimit = 12

	gist := &mockGist{
		enabled: true,
		files: map[string][]byte{
			SettingsFileName: []byte(`{"version":3,"config":{"feed":{"extended_history_limit":30}}}`),
		},
	}
	sm := NewSettingsManager(nil, gist, NewLiveConfig(nil))

	cfg := sm.LoadSettings(context.Background(), env)

	if cfg.Feed.ExtendedHistoryLimit != 30 {
		t.Errorf("expected gist override, got %d", cfg.Feed.ExtendedHistoryLimit)
	}
	if cfg.Feed.HistoryLimit != 12 {
		t.Errorf("expected env value kept, got %d", cfg.Feed.HistoryLimit)
	}
	if cfg.Feed.SessionID != "env-session" {
		t.Errorf("expected env-only session kept, got %q", cfg.Feed.SessionID)
	}
}

func TestSettingsManager_LoadSettings_Fallbacks(t *testing.T) {
	env := Defaults()
	env.Feed.HistoryLimit = 12

	tests := []struct {
		name string
		gist GistStorage
	}{
		{"no gist", nil},
		{"disabled gist", &mockGist{enabled: false}},
		{"load error", &mockGist{enabled: true, loadErr: errors.New("boom")}},
		{"invalid settings", &mockGist{enabled: true, files: map[string][]byte{
			SettingsFileName: []byte(`{"config":{"server":{"port":-1}}}`),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewSettingsManager(nil, tt.gist, NewLiveConfig(nil))
			cfg := sm.LoadSettings(context.Background(), env)
			if cfg.Feed.HistoryLimit != 12 || cfg.Server.Port != 8080 {
				t.Errorf("expected env config, got %+v / %+v", cfg.Feed, cfg.Server)
			}
		})
	}
}

func TestSettingsManager_ApplyJSON(t *testing.T) {
	gist := &mockGist{enabled: true}
	lc := NewLiveConfig(nil)
	sm := NewSettingsManager(nil, gist, lc)

	cfg, err := sm.ApplyJSON(context.Background(), []byte(`{"alerts":{"new_prediction":false,"resolution":true,"max_tracked":100}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Alerts.NewPrediction || cfg.Alerts.MaxTracked != 100 {
		t.Errorf("unexpected alerts config: %+v", cfg.Alerts)
	}
	if gist.saves != 1 {
		t.Errorf("expected one save, got %d", gist.saves)
	}

	var stored SettingsSnapshot
	if err := json.Unmarshal(gist.files[SettingsFileName], &stored); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Version != 2 || stored.Config.Alerts.MaxTracked != 100 {
		t.Errorf("unexpected stored snapshot: %+v", stored)
	}

	if _, err := sm.ApplyJSON(context.Background(), []byte(`{"server":{"port":0}}`)); err == nil {
		t.Error("expected validation error")
	}
	if gist.saves != 1 {
		t.Errorf("expected no further saves, got %d", gist.saves)
	}

	info := sm.GetSettingsInfo()
	if info.Source != "gist" || info.GistID != "settings-gist" || !info.IsValid || info.Version != 2 {
		t.Errorf("unexpected settings info: %+v", info)
	}
}

func TestSettingsManager_SaveDisabled(t *testing.T) {
	sm := NewSettingsManager(nil, nil, NewLiveConfig(nil))
	if err := sm.SaveSettings(context.Background()); !errors.Is(err, ErrSettingsDisabled) {
		t.Errorf("expected ErrSettingsDisabled, got %v", err)
	}
	if info := sm.GetSettingsInfo(); info.Source != "env" {
		t.Errorf("unexpected source: %s", info.Source)
	}
}
