package predictionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"suitfeed/config"
	"suitfeed/internal/feed"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SessionCookie is the cookie the prediction service issues at login.
const SessionCookie = "session_id"

// ErrUnauthorized is returned when the service rejects the session.
var ErrUnauthorized = errors.New("session rejected")

// Client talks to the prediction service REST API.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	sessionID  string
}

// NewClient creates a client for cfg.Feed.BaseURL.
func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Feed.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if cfg.Feed.SessionID == "" {
		logger.Warn("FEED_SESSION_ID not set, requests will be anonymous")
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.Feed.BaseURL, "/"),
		sessionID:  cfg.Feed.SessionID,
	}
}

// ---- wire types ----

// Prediction is one entry of the predictions feed.
type Prediction struct {
	GameNumber int    `json:"game_number"`
	Suit       string `json:"suit"`
	Status     string `json:"status"`
	Rattrapage int    `json:"rattrapage"`
	Timestamp  string `json:"timestamp"`
	TimeStr    string `json:"time_str"`
	Result     string `json:"result,omitempty"`
}

// UserInfo describes the logged-in account.
type UserInfo struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name,omitempty"`
	Email           string `json:"email,omitempty"`
	SubscriptionEnd string `json:"subscription_end,omitempty"`
	IsActive        bool   `json:"is_active,omitempty"`
}

// PredictionsResponse is the body of GET /api/predictions.
type PredictionsResponse struct {
	Predictions         []Prediction    `json:"predictions"`
	TotalPredictions    int             `json:"total_predictions"`
	WonPredictions      int             `json:"won_predictions"`
	LostPredictions     int             `json:"lost_predictions"`
	WinRate             decimal.Decimal `json:"win_rate"`
	CurrentGame         int             `json:"current_game"`
	PredictionChannelOK bool            `json:"prediction_channel_ok"`
	User                *UserInfo       `json:"user,omitempty"`
	Timestamp           string          `json:"timestamp"`
}

// Record converts a wire prediction into a feed record.
func (p Prediction) Record() feed.Record {
	return feed.Record{
		GameNumber: p.GameNumber,
		Suit:       feed.ParseSuit(p.Suit),
		Status:     p.Status,
		CatchUp:    p.Rattrapage,
		Timestamp:  ParseTime(p.Timestamp),
		Result:     p.Result,
	}
}

// Snapshot converts the response into an immutable feed snapshot stamped
// with fetchedAt.
func (r *PredictionsResponse) Snapshot(fetchedAt time.Time) feed.Snapshot {
	records := make([]feed.Record, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		records = append(records, p.Record())
	}

	snap := feed.Snapshot{
		Records: records,
		Stats: feed.Stats{
			Total:       r.TotalPredictions,
			Won:         r.WonPredictions,
			Lost:        r.LostPredictions,
			WinRate:     r.WinRate,
			CurrentGame: r.CurrentGame,
			ChannelOK:   r.PredictionChannelOK,
		},
		FetchedAt: fetchedAt,
	}
	if r.User != nil {
		snap.Viewer = &feed.Viewer{
			FirstName:       r.User.FirstName,
			SubscriptionEnd: ParseTime(r.User.SubscriptionEnd),
		}
	}
	return snap
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTime accepts RFC3339 and the naive ISO forms the service emits.
// Naive timestamps are read as UTC. Unparseable input yields the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ---- endpoints ----

// GetPredictions fetches the feed. limit <= 0 leaves the server default.
func (c *Client) GetPredictions(ctx context.Context, limit int) (*PredictionsResponse, error) {
	u, err := url.Parse(c.baseURL + "/api/predictions")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if limit > 0 {
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
	}

	var resp PredictionsResponse
	if err := c.do(ctx, http.MethodGet, u.String(), &resp); err != nil {
		return nil, fmt.Errorf("get predictions: %w", err)
	}
	return &resp, nil
}

// GetUser fetches the account behind the session.
func (c *Client) GetUser(ctx context.Context) (*UserInfo, error) {
	var user UserInfo
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/api/user", &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Logout ends the session server side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/logout", nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// do performs a request and decodes a JSON response into dest when non-nil.
func (c *Client) do(ctx context.Context, method, url string, dest any) error {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.sessionID})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("prediction api request",
		zap.String("method", method),
		zap.String("url", url),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(respBody))
	}

	if dest == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
