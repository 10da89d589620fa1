package discord

import (
	"fmt"
	"time"

	"suitfeed/clients/notifier"
	"suitfeed/config"
	"suitfeed/internal/feed"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorPending = 0x3498DB
	colorWon     = 0x2ECC71
	colorLost    = 0xE74C3C
)

// DiscordClient sends prediction alerts as embeds.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	dc := &DiscordClient{
		logger:    logger,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord alerts disabled")
		return dc
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return dc
	}
	dc.session = session

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)
	return dc
}

// SendPredictionAlert implements notifier.Notifier.
func (dc *DiscordClient) SendPredictionAlert(alert notifier.PredictionAlert) {
	if dc.session == nil || dc.channelID == "" {
		dc.logger.Warn("discord session not initialized, skipping alert")
		return
	}

	if _, err := dc.session.ChannelMessageSendEmbed(dc.channelID, buildPredictionEmbed(alert)); err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord prediction alert",
		zap.String("kind", string(alert.Kind)),
		zap.Int("game", alert.GameNumber),
	)
}

func buildPredictionEmbed(alert notifier.PredictionAlert) *discordgo.MessageEmbed {
	color := colorPending
	status := feed.PendingMarker + " Waiting for the result"
	switch alert.Kind {
	case notifier.AlertKindWon:
		color = colorWon
		status = alert.Outcome.Badge()
	case notifier.AlertKindLost:
		color = colorLost
		status = alert.Outcome.Badge()
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Game", Value: fmt.Sprintf("#%d", alert.GameNumber), Inline: true},
		{Name: "Suit", Value: fmt.Sprintf("%s %s", alert.Suit.Display(), alert.Suit), Inline: true},
		{Name: "Status", Value: status, Inline: true},
	}

	if alert.Kind == notifier.AlertKindWon {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Tier", Value: alert.Outcome.TierText(), Inline: true,
		})
	}
	if alert.CatchUp > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Catch-up", Value: fmt.Sprintf("R%d", alert.CatchUp), Inline: true,
		})
	}
	if alert.Result != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Result", Value: alert.Result, Inline: true,
		})
	}
	if alert.Stats.Total > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Win Rate",
			Value: fmt.Sprintf("%s%% (%d-%d of %d)",
				alert.Stats.WinRate.String(), alert.Stats.Won, alert.Stats.Lost, alert.Stats.Total),
			Inline: false,
		})
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:  alert.Title(),
		Color:  color,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "suitfeed * " + ts.UTC().Format("2006-01-02 15:04:05 UTC"),
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
