package clients

import (
	"suitfeed/clients/discord"
	"suitfeed/clients/gist"
	"suitfeed/clients/notifier"
	"suitfeed/clients/predictionapi"
	"suitfeed/clients/redisstore"
	"suitfeed/clients/telegram"
	"suitfeed/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord     *discord.DiscordClient
	Telegram    *telegram.TelegramClient
	Notifier    notifier.Notifier // Combined notifier for all channels
	Predictions *predictionapi.Client

	SettingsGist *gist.Client
	HistoryGist  *gist.Client
	Redis        *redisstore.Store // Only set for the redis history backend
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)

	c := &Clients{
		Logger:       logger,
		Discord:      discordClient,
		Telegram:     telegramClient,
		Notifier:     notifier.NewMultiNotifier(discordClient, telegramClient),
		Predictions:  predictionapi.NewClient(logger, cfg),
		SettingsGist: gist.NewClient(logger, cfg, cfg.Gist.SettingsGistID),
		HistoryGist:  gist.NewClient(logger, cfg, cfg.History.GistID),
	}

	if cfg.History.Backend == config.HistoryBackendRedis {
		c.Redis = redisstore.New(logger, cfg)
	}

	return c
}

// Close releases every client holding a connection.
func (c *Clients) Close() error {
	var lastErr error
	if c.Notifier != nil {
		if err := c.Notifier.Close(); err != nil {
			lastErr = err
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
