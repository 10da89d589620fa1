package app

import (
	"sync"
	"time"

	"suitfeed/internal/feed"
)

// ViewKind names one of the published projections.
type ViewKind string

const (
	// ViewShort carries stats, the active prediction and the short history.
	ViewShort ViewKind = "short"
	// ViewExtended carries the longer history table.
	ViewExtended ViewKind = "extended"
)

// ViewListener is called after a snapshot replaces the short view.
type ViewListener func(snap feed.Snapshot, view feed.View)

type viewSlot struct {
	snap  feed.Snapshot
	view  feed.View
	ready bool
}

// accepts reports whether a snapshot fetched at t may replace the slot.
func (s *viewSlot) accepts(t time.Time) bool {
	return !s.ready || !t.Before(s.snap.FetchedAt)
}

// ViewStore holds the latest published views. Updates are last-write-wins
// keyed by fetch completion time: a snapshot whose fetch completed before the
// one currently held is dropped.
type ViewStore struct {
	mu            sync.RWMutex
	shortLimit    int
	extendedLimit int
	short         viewSlot
	extended      viewSlot
	version       uint64
	discarded     uint64
	listeners     []ViewListener
}

// NewViewStore creates an empty store projecting with the given limits.
func NewViewStore(shortLimit, extendedLimit int) *ViewStore {
	return &ViewStore{
		shortLimit:    shortLimit,
		extendedLimit: extendedLimit,
	}
}

// Subscribe registers a listener for short view updates.
func (s *ViewStore) Subscribe(l ViewListener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Publish offers a snapshot fetched by a job of the given kind. An extended
// snapshot also refreshes the short view since it carries a superset of the
// records. Returns false when the snapshot was stale for every slot it
// targeted.
func (s *ViewStore) Publish(kind ViewKind, snap feed.Snapshot) bool {
	s.mu.Lock()

	accepted := false
	if kind == ViewExtended && s.extended.accepts(snap.FetchedAt) {
		s.extended = viewSlot{
			snap:  snap,
			view:  feed.Project(snap, feed.Options{HistoryLimit: s.extendedLimit}),
			ready: true,
		}
		accepted = true
	}

	shortUpdated := false
	if s.short.accepts(snap.FetchedAt) {
		s.short = viewSlot{
			snap:  snap,
			view:  feed.Project(snap, feed.Options{HistoryLimit: s.shortLimit}),
			ready: true,
		}
		accepted = true
		shortUpdated = true
	}

	if accepted {
		s.version++
	} else {
		s.discarded++
	}

	view := s.short.view
	listeners := s.listeners
	s.mu.Unlock()

	if shortUpdated {
		for _, l := range listeners {
			l(snap, view)
		}
	}
	return accepted
}

// SetLimits changes the history limits and re-projects held snapshots.
func (s *ViewStore) SetLimits(shortLimit, extendedLimit int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shortLimit == s.shortLimit && extendedLimit == s.extendedLimit {
		return
	}
	s.shortLimit = shortLimit
	s.extendedLimit = extendedLimit

	if s.short.ready {
		s.short.view = feed.Project(s.short.snap, feed.Options{HistoryLimit: shortLimit})
	}
	if s.extended.ready {
		s.extended.view = feed.Project(s.extended.snap, feed.Options{HistoryLimit: extendedLimit})
	}
	s.version++
}

// Limits returns the short and extended history limits.
func (s *ViewStore) Limits() (shortLimit, extendedLimit int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shortLimit, s.extendedLimit
}

// View returns the current view of the given kind. The extended view falls
// back to the short one until an extended fetch has completed.
func (s *ViewStore) View(kind ViewKind) (feed.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if kind == ViewExtended && s.extended.ready {
		return s.extended.view, true
	}
	return s.short.view, s.short.ready
}

// Version increases every time a published view changes.
func (s *ViewStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Discarded returns the number of stale snapshots dropped.
func (s *ViewStore) Discarded() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.discarded
}
