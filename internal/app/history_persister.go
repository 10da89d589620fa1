package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"suitfeed/clients/gist"
	"suitfeed/clients/redisstore"
	"suitfeed/internal/feed"

	"go.uber.org/zap"
)

// DefaultMaxArchiveEntries bounds the archive when no limit is configured.
const DefaultMaxArchiveEntries = 500

// SnapshotStore persists JSON documents by name. Both the gist client and the
// redis store satisfy it.
type SnapshotStore interface {
	IsEnabled() bool
	LoadJSON(ctx context.Context, name string, dest any) error
	SaveJSON(ctx context.Context, name string, data any) error
}

var (
	_ SnapshotStore = (*gist.Client)(nil)
	_ SnapshotStore = (*redisstore.Store)(nil)
)

// HistoryFile is the persisted form of the archive, oldest first.
type HistoryFile struct {
	SavedAt time.Time     `json:"saved_at"`
	Entries []feed.Record `json:"entries"`
}

// HistoryPersister archives resolved predictions seen in the feed, keyed by
// game number, and periodically writes them to a SnapshotStore.
type HistoryPersister struct {
	logger       *zap.Logger
	store        SnapshotStore
	fileName     string
	saveInterval time.Duration

	mu         sync.RWMutex
	maxEntries int
	entries    map[int]feed.Record
	order      []int
	changes    uint64
	saved      uint64
	lastSaved  time.Time
}

// NewHistoryPersister creates a persister. A nil or disabled store keeps the
// archive in memory only.
func NewHistoryPersister(logger *zap.Logger, store SnapshotStore, fileName string, saveInterval time.Duration, maxEntries int) *HistoryPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fileName == "" {
		fileName = "prediction_history.json"
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxArchiveEntries
	}

	return &HistoryPersister{
		logger:       logger,
		store:        store,
		fileName:     fileName,
		saveInterval: saveInterval,
		maxEntries:   maxEntries,
		entries:      make(map[int]feed.Record),
	}
}

// IsEnabled reports whether the archive is persisted.
func (hp *HistoryPersister) IsEnabled() bool {
	return hp.store != nil && hp.store.IsEnabled()
}

// Ping checks the backend when it supports a connectivity check. Stores
// without one always succeed.
func (hp *HistoryPersister) Ping(ctx context.Context) error {
	if !hp.IsEnabled() {
		return nil
	}
	p, ok := hp.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// SetMaxEntries changes the archive bound, dropping the oldest entries.
func (hp *HistoryPersister) SetMaxEntries(n int) {
	if n <= 0 {
		n = DefaultMaxArchiveEntries
	}
	hp.mu.Lock()
	defer hp.mu.Unlock()
	hp.maxEntries = n
	if hp.trim() > 0 {
		hp.changes++
	}
}

// Merge adds the resolved records of a feed. A record for a game already in
// the archive replaces it in place. Returns the number of added or changed
// entries.
func (hp *HistoryPersister) Merge(records []feed.Record) int {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	changed := 0
	for _, r := range records {
		if !r.Outcome().Resolved() {
			continue
		}
		prev, ok := hp.entries[r.GameNumber]
		if ok && prev == r {
			continue
		}
		if !ok {
			hp.order = append(hp.order, r.GameNumber)
		}
		hp.entries[r.GameNumber] = r
		changed++
	}

	if changed > 0 {
		hp.trim()
		hp.changes++
	}
	return changed
}

// Listener adapts Merge to a ViewListener.
func (hp *HistoryPersister) Listener() ViewListener {
	return func(snap feed.Snapshot, _ feed.View) {
		hp.Merge(snap.Records)
	}
}

// trim drops the oldest entries beyond maxEntries. Callers hold the lock.
func (hp *HistoryPersister) trim() int {
	excess := len(hp.order) - hp.maxEntries
	if excess <= 0 {
		return 0
	}
	for _, game := range hp.order[:excess] {
		delete(hp.entries, game)
	}
	hp.order = append([]int(nil), hp.order[excess:]...)
	return excess
}

// Recent returns up to limit archived records, most recent first. A limit of
// zero or less returns the whole archive.
func (hp *HistoryPersister) Recent(limit int) []feed.Record {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	if limit <= 0 || limit > len(hp.order) {
		limit = len(hp.order)
	}
	out := make([]feed.Record, 0, limit)
	for i := len(hp.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, hp.entries[hp.order[i]])
	}
	return out
}

// Size returns the number of archived records.
func (hp *HistoryPersister) Size() int {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return len(hp.order)
}

// LastSaved returns the time of the last successful save.
func (hp *HistoryPersister) LastSaved() time.Time {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.lastSaved
}

func isMissing(err error) bool {
	return errors.Is(err, gist.ErrNotFound) || errors.Is(err, redisstore.ErrNotFound)
}

// Load restores the archive from the store. A missing document is not an
// error. Returns the number of entries loaded.
func (hp *HistoryPersister) Load(ctx context.Context) (int, error) {
	if !hp.IsEnabled() {
		hp.logger.Info("history store not configured, skipping archive load")
		return 0, nil
	}

	var file HistoryFile
	if err := hp.store.LoadJSON(ctx, hp.fileName, &file); err != nil {
		if isMissing(err) {
			hp.logger.Info("no history archive found, starting fresh",
				zap.String("fileName", hp.fileName),
			)
			return 0, nil
		}
		hp.logger.Warn("failed to load history archive",
			zap.String("fileName", hp.fileName),
			zap.Error(err),
		)
		return 0, err
	}

	hp.mu.Lock()
	defer hp.mu.Unlock()

	loaded := 0
	for _, r := range file.Entries {
		if !r.Outcome().Resolved() {
			continue
		}
		if _, ok := hp.entries[r.GameNumber]; !ok {
			hp.order = append(hp.order, r.GameNumber)
		}
		hp.entries[r.GameNumber] = r
		loaded++
	}
	hp.trim()
	hp.lastSaved = file.SavedAt

	hp.logger.Info("loaded history archive",
		zap.Int("entries", loaded),
		zap.Time("savedAt", file.SavedAt),
	)
	return loaded, nil
}

// Save writes the archive when it changed since the last save.
func (hp *HistoryPersister) Save(ctx context.Context) error {
	if !hp.IsEnabled() {
		return nil
	}

	hp.mu.RLock()
	gen := hp.changes
	if gen == hp.saved {
		hp.mu.RUnlock()
		hp.logger.Debug("history archive unchanged, skipping save")
		return nil
	}
	file := HistoryFile{
		SavedAt: time.Now().UTC(),
		Entries: make([]feed.Record, 0, len(hp.order)),
	}
	for _, game := range hp.order {
		file.Entries = append(file.Entries, hp.entries[game])
	}
	hp.mu.RUnlock()

	if err := hp.store.SaveJSON(ctx, hp.fileName, file); err != nil {
		return err
	}

	hp.mu.Lock()
	if gen > hp.saved {
		hp.saved = gen
	}
	hp.lastSaved = file.SavedAt
	hp.mu.Unlock()

	hp.logger.Info("saved history archive",
		zap.String("fileName", hp.fileName),
		zap.Int("entries", len(file.Entries)),
	)
	return nil
}

// Run saves the archive every save interval and once more on shutdown.
func (hp *HistoryPersister) Run(ctx context.Context) {
	if !hp.IsEnabled() {
		hp.logger.Info("history store not configured, archive persistence disabled")
		return
	}
	if hp.saveInterval <= 0 {
		hp.saveInterval = 5 * time.Minute
	}

	ticker := time.NewTicker(hp.saveInterval)
	defer ticker.Stop()

	hp.logger.Info("history persister started",
		zap.Duration("saveInterval", hp.saveInterval),
	)

	for {
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := hp.Save(saveCtx); err != nil {
				hp.logger.Error("failed to save history archive on shutdown", zap.Error(err))
			}
			cancel()
			hp.logger.Info("history persister stopped")
			return

		case <-ticker.C:
			if err := hp.Save(ctx); err != nil {
				hp.logger.Warn("failed to save history archive", zap.Error(err))
			}
		}
	}
}
