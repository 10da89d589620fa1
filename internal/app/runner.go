package app

import (
	"context"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	clts "suitfeed/clients"
	"suitfeed/clients/notifier"
	"suitfeed/clients/predictionapi"
	"suitfeed/config"

	"go.uber.org/zap"
)

// ensure Runner implements ConfigObserver
var _ config.ConfigObserver = (*Runner)(nil)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Scheduled job names.
const (
	jobStats   = "stats"
	jobHistory = "history"
)

// SessionClient manages the feed session.
type SessionClient interface {
	GetUser(ctx context.Context) (*predictionapi.UserInfo, error)
	Logout(ctx context.Context) error
}

var _ SessionClient = (*predictionapi.Client)(nil)

type Runner struct {
	logger          *zap.Logger
	clients         *clts.Clients
	liveConfig      *config.LiveConfig
	settingsManager *config.SettingsManager

	source  FeedSource
	session SessionClient

	store     *ViewStore
	poller    *FeedPoller
	tracker   *ResolutionTracker
	history   *HistoryPersister
	scheduler *Scheduler

	healthServer *http.Server
	startTime    time.Time

	// Closed when Run begins shutting down; ends websocket streams.
	stopping chan struct{}
}

// ServiceStats holds service statistics served on /stats.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	// Feed polling
	Feed struct {
		BaseURL         string      `json:"base_url"`
		StatsInterval   string      `json:"stats_interval"`
		HistoryInterval string      `json:"history_interval"`
		Poller          PollerStats `json:"poller"`
		ViewVersion     uint64      `json:"view_version"`
		StaleDiscarded  uint64      `json:"stale_discarded"`
		HasView         bool        `json:"has_view"`
		LastFetchedAt   string      `json:"last_fetched_at,omitempty"`
		LastFetchedAgo  string      `json:"last_fetched_ago,omitempty"`
	} `json:"feed"`

	// Alert stats
	Alerts struct {
		Total         int `json:"total"`
		NewPrediction int `json:"new_prediction"`
		Won           int `json:"won"`
		Lost          int `json:"lost"`
		WatchedGames  int `json:"watched_games"`
		Remembered    int `json:"remembered"`
	} `json:"alerts"`

	// Archive stats
	History struct {
		Backend     string `json:"backend"`
		Persisted   bool   `json:"persisted"`
		Entries     int    `json:"entries"`
		LastSavedAt string `json:"last_saved_at,omitempty"`
	} `json:"history"`

	// Notification status
	Notifications struct {
		DiscordEnabled   bool   `json:"discord_enabled"`
		DiscordChannelID string `json:"discord_channel_id,omitempty"`
		TelegramEnabled  bool   `json:"telegram_enabled"`
		TelegramChatID   string `json:"telegram_chat_id,omitempty"`
	} `json:"notifications"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		HeapSys    uint64 `json:"heap_sys"`
		NumGC      uint32 `json:"num_gc"`
		LastGC     string `json:"last_gc,omitempty"`
		GoVersion  string `json:"go_version"`
		NumCPU     int    `json:"num_cpu"`
		GOOS       string `json:"goos"`
		GOARCH     string `json:"goarch"`
	} `json:"runtime"`
}

// NewRunner wires the feed pipeline from the current config. settingsManager
// may be nil.
func NewRunner(clients *clts.Clients, liveConfig *config.LiveConfig, settingsManager *config.SettingsManager) *Runner {
	logger := clients.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := liveConfig.Get()

	r := &Runner{
		logger:          logger,
		clients:         clients,
		liveConfig:      liveConfig,
		settingsManager: settingsManager,
		store:           NewViewStore(cfg.Feed.HistoryLimit, cfg.Feed.ExtendedHistoryLimit),
		scheduler:       NewScheduler(logger.Named("scheduler")),
		startTime:       time.Now(),
		stopping:        make(chan struct{}),
	}

	if clients.Predictions != nil {
		r.source = clients.Predictions
		r.session = clients.Predictions
	}

	r.poller = NewFeedPoller(logger.Named("poller"), r, r.store, cfg.Feed.BackoffMin, cfg.Feed.BackoffMax)

	r.tracker = NewResolutionTracker(logger.Named("alerts"), clients.Notifier, trackerConfig(cfg))
	r.store.Subscribe(r.tracker.Listener())

	r.history = NewHistoryPersister(
		logger.Named("history"),
		historyStore(cfg, clients),
		cfg.History.FileName,
		cfg.History.SaveInterval,
		cfg.History.MaxEntries,
	)
	r.store.Subscribe(r.history.Listener())

	liveConfig.AddObserver(r)
	return r
}

// GetPredictions forwards to the configured source.
func (r *Runner) GetPredictions(ctx context.Context, limit int) (*predictionapi.PredictionsResponse, error) {
	return r.source.GetPredictions(ctx, limit)
}

func trackerConfig(cfg *config.Config) ResolutionTrackerConfig {
	return ResolutionTrackerConfig{
		NewPrediction: cfg.Alerts.NewPrediction,
		Resolution:    cfg.Alerts.Resolution,
		MaxTracked:    cfg.Alerts.MaxTracked,
	}
}

// historyStore picks the archive backend. It returns a nil interface rather
// than a typed nil when the backend's client is missing.
func historyStore(cfg *config.Config, clients *clts.Clients) SnapshotStore {
	switch cfg.History.Backend {
	case config.HistoryBackendGist:
		if clients.HistoryGist != nil {
			return clients.HistoryGist
		}
	case config.HistoryBackendRedis:
		if clients.Redis != nil {
			return clients.Redis
		}
	}
	return nil
}

// OnConfigUpdate implements config.ConfigObserver.
func (r *Runner) OnConfigUpdate(cfg *config.Config) {
	r.store.SetLimits(cfg.Feed.HistoryLimit, cfg.Feed.ExtendedHistoryLimit)
	r.poller.SetBackoff(cfg.Feed.BackoffMin, cfg.Feed.BackoffMax)
	r.tracker.SetConfig(trackerConfig(cfg))
	r.history.SetMaxEntries(cfg.History.MaxEntries)

	if _, ok := r.scheduler.Interval(jobStats); ok {
		if err := r.scheduler.Reschedule(jobStats, cfg.Feed.StatsInterval); err != nil {
			r.logger.Warn("failed to reschedule stats job", zap.Error(err))
		}
	}
	if _, ok := r.scheduler.Interval(jobHistory); ok {
		if err := r.scheduler.Reschedule(jobHistory, cfg.Feed.HistoryInterval); err != nil {
			r.logger.Warn("failed to reschedule history job", zap.Error(err))
		}
	}

	r.logger.Info("config updated",
		zap.Int("historyLimit", cfg.Feed.HistoryLimit),
		zap.Int("extendedHistoryLimit", cfg.Feed.ExtendedHistoryLimit),
		zap.Duration("statsInterval", cfg.Feed.StatsInterval),
		zap.Duration("historyInterval", cfg.Feed.HistoryInterval),
	)
}

func (r *Runner) Run(ctx context.Context) error {
	logger := r.logger
	cfg := r.liveConfig.Get()
	r.startTime = time.Now()

	if r.source == nil {
		return errNoSource
	}

	// Restore the archive before the first view merges into it
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := r.history.Ping(loadCtx); err != nil {
		logger.Warn("history store unreachable", zap.String("backend", cfg.History.Backend), zap.Error(err))
	}
	if loaded, err := r.history.Load(loadCtx); err != nil {
		logger.Warn("failed to load history archive", zap.Error(err))
	} else if loaded > 0 {
		logger.Info("restored history archive", zap.Int("entries", loaded))
	}
	loadCancel()

	if r.session != nil {
		userCtx, userCancel := context.WithTimeout(ctx, cfg.Feed.RequestTimeout)
		if user, err := r.session.GetUser(userCtx); err != nil {
			logger.Warn("failed to fetch session user", zap.Error(err))
		} else {
			logger.Info("feed session",
				zap.String("user", nz(user.FirstName, "-")),
				zap.String("subscriptionEnd", nz(user.SubscriptionEnd, "-")),
			)
		}
		userCancel()
	}

	// Initial fetch so the first view does not wait for a tick
	r.poller.PollShort(ctx)
	r.poller.PollExtended(ctx)

	if err := r.scheduler.Schedule(jobStats, cfg.Feed.StatsInterval, r.poller.PollShort); err != nil {
		return err
	}
	if err := r.scheduler.Schedule(jobHistory, cfg.Feed.HistoryInterval, r.poller.PollExtended); err != nil {
		return err
	}
	r.scheduler.Start(ctx)

	if cfg.Server.Enabled {
		r.startHealthServer(cfg.Server.Port)
		logger.Info("view server started", zap.Int("port", cfg.Server.Port))
	}

	historyDone := make(chan struct{})
	go func() {
		defer close(historyDone)
		r.history.Run(ctx)
	}()

	logger.Info("feed polling started",
		zap.String("baseURL", cfg.Feed.BaseURL),
		zap.Duration("statsInterval", cfg.Feed.StatsInterval),
		zap.Duration("historyInterval", cfg.Feed.HistoryInterval),
	)

	<-ctx.Done()
	logger.Info("runner shutting down")
	close(r.stopping)

	r.scheduler.Stop(10 * time.Second)

	// Wait for the final archive save
	<-historyDone

	if r.liveConfig.Get().Feed.LogoutOnExit && r.session != nil {
		logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.session.Logout(logoutCtx); err != nil {
			logger.Warn("failed to log out of feed session", zap.Error(err))
		} else {
			logger.Info("logged out of feed session")
		}
		logoutCancel()
	}

	if r.healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.healthServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	return nil
}

// GetStats returns the current service statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats
	cfg := r.liveConfig.Get()

	// Build info
	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	// Service info
	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	// Feed stats
	stats.Feed.BaseURL = cfg.Feed.BaseURL
	stats.Feed.StatsInterval = cfg.Feed.StatsInterval.String()
	stats.Feed.HistoryInterval = cfg.Feed.HistoryInterval.String()
	stats.Feed.Poller = r.poller.Stats()
	stats.Feed.ViewVersion = r.store.Version()
	stats.Feed.StaleDiscarded = r.store.Discarded()
	if view, ok := r.store.View(ViewShort); ok {
		stats.Feed.HasView = true
		if !view.FetchedAt.IsZero() {
			stats.Feed.LastFetchedAt = view.FetchedAt.UTC().Format(time.RFC3339)
			stats.Feed.LastFetchedAgo = time.Since(view.FetchedAt).Round(time.Second).String()
		}
	}

	// Alert stats
	counts := r.tracker.Counts()
	stats.Alerts.NewPrediction = counts[notifier.AlertKindNewPrediction]
	stats.Alerts.Won = counts[notifier.AlertKindWon]
	stats.Alerts.Lost = counts[notifier.AlertKindLost]
	stats.Alerts.Total = stats.Alerts.NewPrediction + stats.Alerts.Won + stats.Alerts.Lost
	stats.Alerts.WatchedGames, stats.Alerts.Remembered = r.tracker.Tracked()

	// Archive stats
	stats.History.Backend = cfg.History.Backend
	stats.History.Persisted = r.history.IsEnabled()
	stats.History.Entries = r.history.Size()
	if saved := r.history.LastSaved(); !saved.IsZero() {
		stats.History.LastSavedAt = saved.UTC().Format(time.RFC3339)
	}

	// Notification status
	stats.Notifications.DiscordEnabled = r.clients.Discord != nil
	if r.clients.Discord != nil {
		if cfg.IsProd {
			stats.Notifications.DiscordChannelID = cfg.Discord.ProdChannelID
		} else {
			stats.Notifications.DiscordChannelID = cfg.Discord.BetaChannelID
		}
	}
	stats.Notifications.TelegramEnabled = r.clients.Telegram != nil
	if r.clients.Telegram != nil {
		if cfg.IsProd {
			stats.Notifications.TelegramChatID = cfg.Telegram.ProdChatID
		} else {
			stats.Notifications.TelegramChatID = cfg.Telegram.BetaChatID
		}
	}

	// Runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.HeapSys = memStats.HeapSys
	stats.Runtime.NumGC = memStats.NumGC
	if memStats.LastGC > 0 {
		stats.Runtime.LastGC = time.Unix(0, int64(memStats.LastGC)).UTC().Format(time.RFC3339)
	}
	stats.Runtime.GoVersion = runtime.Version()
	stats.Runtime.NumCPU = runtime.NumCPU()
	stats.Runtime.GOOS = runtime.GOOS
	stats.Runtime.GOARCH = runtime.GOARCH

	return stats
}
