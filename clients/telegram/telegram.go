package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"suitfeed/clients/notifier"
	"suitfeed/config"
	"suitfeed/internal/feed"

	"go.uber.org/zap"
)

// TelegramClient sends prediction alerts through the Bot API.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	baseURL  string
	botToken string
	chatID   string
	isProd   bool
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.Telegram.BetaChatID
	if cfg.IsProd {
		chatID = cfg.Telegram.ProdChatID
	}

	baseURL := strings.TrimRight(cfg.Telegram.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	tc := &TelegramClient{
		logger:  logger,
		baseURL: baseURL,
		chatID:  chatID,
		isProd:  cfg.IsProd,
	}

	if cfg.Telegram.BotToken == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram alerts disabled")
		return tc
	}

	tc.botToken = cfg.Telegram.BotToken
	tc.client = &http.Client{Timeout: 10 * time.Second}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)
	return tc
}

// SendPredictionAlert implements notifier.Notifier.
func (tc *TelegramClient) SendPredictionAlert(alert notifier.PredictionAlert) {
	if tc.botToken == "" || tc.chatID == "" {
		tc.logger.Warn("telegram not configured, skipping alert")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := tc.sendMessage(ctx, buildAlertMessage(alert)); err != nil {
		tc.logger.Error("failed to send telegram message", zap.Error(err))
		return
	}

	tc.logger.Info("sent telegram prediction alert",
		zap.String("kind", string(alert.Kind)),
		zap.Int("game", alert.GameNumber),
	)
}

func buildAlertMessage(alert notifier.PredictionAlert) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("*%s*\n\n", escapeMarkdown(alert.Title())))
	sb.WriteString(fmt.Sprintf("🎯 *Suit:* %s %s\n", alert.Suit.Display(), alert.Suit))

	switch alert.Kind {
	case notifier.AlertKindNewPrediction:
		if alert.CatchUp > 0 {
			sb.WriteString(fmt.Sprintf("🔁 *Catch-up:* R%d\n", alert.CatchUp))
		}
		sb.WriteString("⏳ Waiting for the result...\n")
	default:
		sb.WriteString(fmt.Sprintf("📊 *Status:* %s\n", escapeMarkdown(alert.Outcome.Badge())))
		if alert.Outcome.Kind == feed.OutcomeWon {
			sb.WriteString(fmt.Sprintf("🏅 *Tier:* %s\n", alert.Outcome.TierText()))
		}
		if alert.Result != "" {
			sb.WriteString(fmt.Sprintf("🃏 *Result:* %s\n", escapeMarkdown(alert.Result)))
		}
	}

	if alert.Stats.Total > 0 {
		sb.WriteString(fmt.Sprintf("\n📈 *Win rate:* %s%% (%d✅ / %d❌ of %d)\n",
			alert.Stats.WinRate.String(), alert.Stats.Won, alert.Stats.Lost, alert.Stats.Total))
	}

	if !alert.Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf("\n_%s_", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")))
	}

	return sb.String()
}

func (tc *TelegramClient) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", tc.baseURL, tc.botToken)

	body, err := json.Marshal(map[string]any{
		"chat_id":    tc.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Close implements notifier.Notifier.
func (tc *TelegramClient) Close() error {
	return nil
}

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
