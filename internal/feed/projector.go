package feed

import (
	"time"
)

// DefaultHistoryLimit is the number of resolved records in the short view.
const DefaultHistoryLimit = 10

// FindActive returns the pending record of the feed. If several records are
// pending the last one in feed order wins.
func FindActive(records []Record) (Record, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Outcome().Pending() {
			return records[i], true
		}
	}
	return Record{}, false
}

// RecentHistory drops pending records, keeps the last limit resolved ones and
// returns them most recent first. The result is never nil.
func RecentHistory(records []Record, limit int) []Record {
	out := make([]Record, 0, min(max(limit, 0), len(records)))
	if limit <= 0 {
		return out
	}
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		if records[i].Outcome().Resolved() {
			out = append(out, records[i])
		}
	}
	return out
}

// Options controls projection.
type Options struct {
	HistoryLimit int
}

// Entry is a record decorated for display.
type Entry struct {
	Record
	Outcome     Outcome `json:"outcome"`
	SuitDisplay string  `json:"suit_display"`
	Badge       string  `json:"badge"`
	TierText    string  `json:"tier_text"`
	ResultText  string  `json:"result_text"`
	TimeText    string  `json:"time_text"`
}

// View is everything a dashboard renders for one snapshot.
type View struct {
	Stats        Stats     `json:"stats"`
	Viewer       *Viewer   `json:"viewer,omitempty"`
	Active       *Entry    `json:"active,omitempty"`
	History      []Entry   `json:"history"`
	Empty        bool      `json:"empty"`
	HistoryLimit int       `json:"history_limit"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Project derives the view of a snapshot. It never fails: a nil or empty
// feed produces an empty view.
func Project(snap Snapshot, opts Options) View {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	v := View{
		Stats:        snap.Stats,
		Viewer:       snap.Viewer,
		HistoryLimit: limit,
		FetchedAt:    snap.FetchedAt,
	}

	if active, ok := FindActive(snap.Records); ok {
		e := NewEntry(active)
		v.Active = &e
	}

	recent := RecentHistory(snap.Records, limit)
	v.History = make([]Entry, 0, len(recent))
	for _, r := range recent {
		v.History = append(v.History, NewEntry(r))
	}
	v.Empty = len(v.History) == 0

	return v
}

// NewEntry decorates a record, filling missing fields with the placeholder.
func NewEntry(r Record) Entry {
	o := r.Outcome()
	e := Entry{
		Record:      r,
		Outcome:     o,
		SuitDisplay: r.Suit.Display(),
		Badge:       o.Badge(),
		TierText:    o.TierText(),
		ResultText:  r.Result,
		TimeText:    Placeholder,
	}
	if e.ResultText == "" {
		e.ResultText = Placeholder
	}
	if !r.Timestamp.IsZero() {
		e.TimeText = r.Timestamp.Format("02/01 15:04")
	}
	return e
}
