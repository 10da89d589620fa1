package app

import (
	"strings"
	"sync"
	"time"

	"suitfeed/clients/notifier"
	"suitfeed/internal/feed"

	"go.uber.org/zap"
)

// DefaultMaxTracked bounds the remembered alerts and watched games.
const DefaultMaxTracked = 500

// ResolutionTrackerConfig controls which transitions are alerted.
type ResolutionTrackerConfig struct {
	NewPrediction bool
	Resolution    bool
	MaxTracked    int
}

type alertKey struct {
	game int
	kind notifier.AlertKind
}

// ResolutionTracker diffs consecutive short views. A new active game emits a
// new_prediction alert; a game previously seen active that shows up resolved
// in the history emits prediction_won or prediction_lost. Every (game, kind)
// pair is alerted at most once.
type ResolutionTracker struct {
	logger   *zap.Logger
	notifier notifier.Notifier

	mu       sync.Mutex
	cfg      ResolutionTrackerConfig
	primed   bool
	lastSeen time.Time

	watched      map[int]struct{}
	watchedOrder []int

	sent      map[alertKey]struct{}
	sentOrder []alertKey

	counts map[notifier.AlertKind]int
}

// NewResolutionTracker creates a tracker sending to n. A nil notifier only
// records alerts.
func NewResolutionTracker(logger *zap.Logger, n notifier.Notifier, cfg ResolutionTrackerConfig) *ResolutionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = DefaultMaxTracked
	}
	return &ResolutionTracker{
		logger:   logger,
		notifier: n,
		cfg:      cfg,
		watched:  make(map[int]struct{}),
		sent:     make(map[alertKey]struct{}),
		counts:   make(map[notifier.AlertKind]int),
	}
}

// SetConfig replaces the alert switches and bound.
func (t *ResolutionTracker) SetConfig(cfg ResolutionTrackerConfig) {
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = DefaultMaxTracked
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
	t.trim()
}

// Observe is a ViewListener. It returns the alerts that were emitted.
func (t *ResolutionTracker) Observe(snap feed.Snapshot, view feed.View) []notifier.PredictionAlert {
	t.mu.Lock()

	if !view.FetchedAt.IsZero() && view.FetchedAt.Before(t.lastSeen) {
		t.mu.Unlock()
		return nil
	}
	t.lastSeen = view.FetchedAt

	// The first view only establishes a baseline so a restart does not replay
	// alerts for games that were already announced.
	if !t.primed {
		t.primed = true
		if active := announced(snap, view); active != nil {
			t.watch(active.GameNumber)
			t.markSent(alertKey{active.GameNumber, notifier.AlertKindNewPrediction})
		}
		for _, e := range view.History {
			t.markSent(alertKey{e.GameNumber, resolutionKind(e.Outcome)})
		}
		t.mu.Unlock()
		t.logger.Debug("resolution tracker primed", zap.Int("history", len(view.History)))
		return nil
	}

	var alerts []notifier.PredictionAlert

	if active := announced(snap, view); active != nil {
		game := active.GameNumber
		t.watch(game)
		key := alertKey{game, notifier.AlertKindNewPrediction}
		if !t.isSent(key) {
			t.markSent(key)
			if t.cfg.NewPrediction {
				alerts = append(alerts, newAlert(key.kind, *active, view.Stats))
			}
		}
	}

	// History is most recent first; alert oldest first.
	for i := len(view.History) - 1; i >= 0; i-- {
		e := view.History[i]
		if _, ok := t.watched[e.GameNumber]; !ok {
			continue
		}
		key := alertKey{e.GameNumber, resolutionKind(e.Outcome)}
		t.unwatch(e.GameNumber)
		if t.isSent(key) {
			continue
		}
		t.markSent(key)
		if t.cfg.Resolution {
			alerts = append(alerts, newAlert(key.kind, e, view.Stats))
		}
	}

	for _, a := range alerts {
		t.counts[a.Kind]++
	}
	t.mu.Unlock()

	for _, a := range alerts {
		t.logger.Info("prediction alert",
			zap.String("kind", string(a.Kind)),
			zap.Int("game", a.GameNumber),
			zap.String("status", a.Status),
		)
		if t.notifier != nil {
			t.notifier.SendPredictionAlert(a)
		}
	}
	return alerts
}

// Listener adapts Observe to a ViewListener.
func (t *ResolutionTracker) Listener() ViewListener {
	return func(snap feed.Snapshot, view feed.View) {
		t.Observe(snap, view)
	}
}

// Counts returns the number of alerts emitted per kind.
func (t *ResolutionTracker) Counts() map[notifier.AlertKind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[notifier.AlertKind]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Tracked returns the sizes of the watched and sent sets.
func (t *ResolutionTracker) Tracked() (watched, sent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watched), len(t.sent)
}

// isCatchUp reports whether r is a follow-up attempt queued after a miss.
// The feed never resolves these, so they are neither announced nor watched.
func isCatchUp(r feed.Record) bool {
	return r.CatchUp > 0 || strings.Contains(r.Status, feed.QueuedMarker)
}

// announced returns the pending prediction worth announcing: the view's
// active entry, or the last pending non catch-up record when the active one
// is a catch-up.
func announced(snap feed.Snapshot, view feed.View) *feed.Entry {
	if view.Active != nil && !isCatchUp(view.Active.Record) {
		return view.Active
	}
	for i := len(snap.Records) - 1; i >= 0; i-- {
		r := snap.Records[i]
		if r.Outcome().Pending() && !isCatchUp(r) {
			e := feed.NewEntry(r)
			return &e
		}
	}
	return nil
}

func resolutionKind(o feed.Outcome) notifier.AlertKind {
	if o.Kind == feed.OutcomeLost {
		return notifier.AlertKindLost
	}
	return notifier.AlertKindWon
}

func newAlert(kind notifier.AlertKind, e feed.Entry, stats feed.Stats) notifier.PredictionAlert {
	return notifier.PredictionAlert{
		Kind:       kind,
		GameNumber: e.GameNumber,
		Suit:       e.Suit,
		Status:     e.Status,
		Outcome:    e.Outcome,
		CatchUp:    e.CatchUp,
		Result:     e.Result,
		Stats:      stats,
		Timestamp:  e.Timestamp,
	}
}

func (t *ResolutionTracker) watch(game int) {
	if _, ok := t.watched[game]; ok {
		return
	}
	t.watched[game] = struct{}{}
	t.watchedOrder = append(t.watchedOrder, game)
	t.trim()
}

func (t *ResolutionTracker) unwatch(game int) {
	delete(t.watched, game)
}

func (t *ResolutionTracker) isSent(key alertKey) bool {
	_, ok := t.sent[key]
	return ok
}

func (t *ResolutionTracker) markSent(key alertKey) {
	if _, ok := t.sent[key]; ok {
		return
	}
	t.sent[key] = struct{}{}
	t.sentOrder = append(t.sentOrder, key)
	t.trim()
}

// trim evicts the oldest entries beyond MaxTracked. Order slices may hold
// games already unwatched; those are skipped.
func (t *ResolutionTracker) trim() {
	for len(t.sent) > t.cfg.MaxTracked && len(t.sentOrder) > 0 {
		delete(t.sent, t.sentOrder[0])
		t.sentOrder = t.sentOrder[1:]
	}

	live := t.watchedOrder[:0]
	for _, g := range t.watchedOrder {
		if _, ok := t.watched[g]; ok {
			live = append(live, g)
		}
	}
	t.watchedOrder = live
	for len(t.watched) > t.cfg.MaxTracked && len(t.watchedOrder) > 0 {
		delete(t.watched, t.watchedOrder[0])
		t.watchedOrder = t.watchedOrder[1:]
	}
}
