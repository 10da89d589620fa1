package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"suitfeed/clients/predictionapi"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// FeedSource fetches the prediction feed.
type FeedSource interface {
	GetPredictions(ctx context.Context, limit int) (*predictionapi.PredictionsResponse, error)
}

var _ FeedSource = (*predictionapi.Client)(nil)

// PollerStats are the poller's counters.
type PollerStats struct {
	Polls               int64     `json:"polls"`
	Failures            int64     `json:"failures"`
	Skipped             int64     `json:"skipped"`
	Stale               int64     `json:"stale"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Unauthorized        bool      `json:"unauthorized"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitempty"`
	RetryAt             time.Time `json:"retry_at,omitempty"`
}

// FeedPoller fetches the feed and publishes snapshots to a ViewStore. After a
// failed fetch it skips ticks until the backoff delay has elapsed.
type FeedPoller struct {
	logger *zap.Logger
	source FeedSource
	store  *ViewStore
	now    func() time.Time

	mu      sync.Mutex
	backoff *backoff.Backoff
	stats   PollerStats
}

// NewFeedPoller creates a poller. minDelay and maxDelay bound the retry delay
// after failures.
func NewFeedPoller(logger *zap.Logger, source FeedSource, store *ViewStore, minDelay, maxDelay time.Duration) *FeedPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedPoller{
		logger: logger,
		source: source,
		store:  store,
		now:    time.Now,
		backoff: &backoff.Backoff{
			Min:    minDelay,
			Max:    maxDelay,
			Factor: 2,
			Jitter: true,
		},
	}
}

// SetBackoff changes the retry delay bounds.
func (p *FeedPoller) SetBackoff(minDelay, maxDelay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backoff.Min = minDelay
	p.backoff.Max = maxDelay
}

// PollShort refreshes the short view.
func (p *FeedPoller) PollShort(ctx context.Context) {
	p.Poll(ctx, ViewShort)
}

// PollExtended refreshes the extended view.
func (p *FeedPoller) PollExtended(ctx context.Context) {
	p.Poll(ctx, ViewExtended)
}

// Poll performs one fetch for the given view kind. It returns true when a
// snapshot was published.
func (p *FeedPoller) Poll(ctx context.Context, kind ViewKind) bool {
	p.mu.Lock()
	if now := p.now(); !p.stats.RetryAt.IsZero() && now.Before(p.stats.RetryAt) {
		p.stats.Skipped++
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	limit := 0
	if kind == ViewExtended {
		_, limit = p.store.Limits()
	}

	resp, err := p.source.GetPredictions(ctx, limit)
	completedAt := p.now()
	if err != nil {
		p.recordFailure(ctx, kind, err, completedAt)
		return false
	}

	p.recordSuccess(kind, completedAt)

	if !p.store.Publish(kind, resp.Snapshot(completedAt)) {
		p.mu.Lock()
		p.stats.Stale++
		p.mu.Unlock()
		p.logger.Debug("discarded stale snapshot",
			zap.String("view", string(kind)),
			zap.Time("fetchedAt", completedAt),
		)
		return false
	}
	return true
}

func (p *FeedPoller) recordSuccess(kind ViewKind, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stats.ConsecutiveFailures > 0 {
		p.logger.Info("feed fetch recovered",
			zap.String("view", string(kind)),
			zap.Int("failures", p.stats.ConsecutiveFailures),
		)
	}

	p.backoff.Reset()
	p.stats.Polls++
	p.stats.ConsecutiveFailures = 0
	p.stats.Unauthorized = false
	p.stats.LastSuccessAt = at
	p.stats.RetryAt = time.Time{}
}

func (p *FeedPoller) recordFailure(ctx context.Context, kind ViewKind, err error, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Polls++
	p.stats.Failures++
	p.stats.ConsecutiveFailures++
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = at

	// Cancellation on shutdown is not a feed failure.
	if ctx.Err() != nil {
		return
	}

	delay := p.backoff.Duration()
	p.stats.RetryAt = at.Add(delay)

	if errors.Is(err, predictionapi.ErrUnauthorized) {
		if !p.stats.Unauthorized {
			p.logger.Warn("feed session rejected, check FEED_SESSION_ID",
				zap.Duration("retryIn", delay),
			)
		}
		p.stats.Unauthorized = true
		return
	}

	p.logger.Warn("feed fetch failed",
		zap.String("view", string(kind)),
		zap.Int("attempt", p.stats.ConsecutiveFailures),
		zap.Duration("retryIn", delay),
		zap.Error(err),
	)
}

// Stats returns a copy of the poller counters.
func (p *FeedPoller) Stats() PollerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
