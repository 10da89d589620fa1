package feed

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func records(statuses ...string) []Record {
	out := make([]Record, len(statuses))
	for i, s := range statuses {
		out[i] = Record{GameNumber: 100 + i, Suit: Heart, Status: s}
	}
	return out
}

func statuses(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Status
	}
	return out
}

func TestFindActive(t *testing.T) {
	tests := []struct {
		name   string
		feed   []Record
		want   int
		wantOK bool
	}{
		{"empty", nil, 0, false},
		{"none pending", records("✅1", "❌"), 0, false},
		{"single pending", records("✅1", "⏳", "❌"), 101, true},
		{"queued counts as pending", records("❌", "🔮"), 101, true},
		{"last pending wins", records("⏳", "✅0", "⏳"), 102, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindActive(tt.feed)
			if ok != tt.wantOK {
				t.Fatalf("unexpected ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got.GameNumber != tt.want {
				t.Errorf("unexpected game: got %d, want %d", got.GameNumber, tt.want)
			}
		})
	}
}

func TestRecentHistory(t *testing.T) {
	got := RecentHistory(records("✅2", "❌", "⏳", "✅0"), 10)
	want := []string{"✅0", "❌", "✅2"}
	if !reflect.DeepEqual(statuses(got), want) {
		t.Errorf("unexpected history: got %v, want %v", statuses(got), want)
	}
}

func TestRecentHistory_Limit(t *testing.T) {
	feed := records("✅1", "❌", "✅2", "⏳", "✅3")

	got := RecentHistory(feed, 2)
	want := []string{"✅3", "✅2"}
	if !reflect.DeepEqual(statuses(got), want) {
		t.Errorf("unexpected history: got %v, want %v", statuses(got), want)
	}

	// Past the resolved count there is no padding.
	full := RecentHistory(feed, 4)
	larger := RecentHistory(feed, 50)
	if !reflect.DeepEqual(full, larger) {
		t.Errorf("expected identical histories, got %v and %v", statuses(full), statuses(larger))
	}
	if len(larger) != 4 {
		t.Errorf("unexpected length: %d", len(larger))
	}
}

func TestRecentHistory_AllPending(t *testing.T) {
	for _, limit := range []int{0, 1, 10, 100} {
		got := RecentHistory(records("⏳", "🔮", "EN COURS"), limit)
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil history for limit %d, got %v", limit, got)
		}
	}
}

func TestRecentHistory_NonPositiveLimit(t *testing.T) {
	if got := RecentHistory(records("✅1"), 0); len(got) != 0 {
		t.Errorf("expected empty history, got %v", statuses(got))
	}
	if got := RecentHistory(records("✅1"), -3); len(got) != 0 {
		t.Errorf("expected empty history, got %v", statuses(got))
	}
}

func TestRecentHistory_Idempotent(t *testing.T) {
	once := RecentHistory(records("✅2", "❌", "⏳", "✅0", "GAGNÉ"), 10)
	for _, r := range once {
		if r.Outcome().Pending() {
			t.Fatalf("pending record %q in history", r.Status)
		}
	}
	// Re-applying to the oldest-first form removes nothing.
	reversed := make([]Record, len(once))
	for i, r := range once {
		reversed[len(once)-1-i] = r
	}
	twice := RecentHistory(reversed, 10)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("expected idempotent history, got %v then %v", statuses(once), statuses(twice))
	}
}

func TestProject(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)
	fetched := ts.Add(time.Minute)
	snap := Snapshot{
		Records: []Record{
			{GameNumber: 10, Suit: Spade, Status: "✅1️⃣", Timestamp: ts},
			{GameNumber: 11, Suit: Heart, Status: "❌", Result: "K♠ 7♦"},
			{GameNumber: 12, Suit: Club, Status: "⏳", CatchUp: 1},
		},
		Stats: Stats{
			Total:   3,
			Won:     1,
			Lost:    1,
			WinRate: decimal.RequireFromString("33.3"),
		},
		Viewer:    &Viewer{FirstName: "Ada"},
		FetchedAt: fetched,
	}

	v := Project(snap, Options{HistoryLimit: 20})

	if v.HistoryLimit != 20 {
		t.Errorf("unexpected history limit: %d", v.HistoryLimit)
	}
	if !v.Stats.WinRate.Equal(decimal.RequireFromString("33.3")) {
		t.Errorf("unexpected win rate: %s", v.Stats.WinRate)
	}
	if v.Stats.Total != 3 || v.Stats.Won != 1 || v.Stats.Lost != 1 {
		t.Errorf("unexpected stats: %+v", v.Stats)
	}
	if v.Viewer == nil || v.Viewer.FirstName != "Ada" {
		t.Errorf("unexpected viewer: %+v", v.Viewer)
	}
	if !v.FetchedAt.Equal(fetched) {
		t.Errorf("unexpected fetched at: %v", v.FetchedAt)
	}

	if v.Active == nil {
		t.Fatal("expected active entry")
	}
	if v.Active.GameNumber != 12 || v.Active.SuitDisplay != "♣️" || v.Active.Badge != "⏳" {
		t.Errorf("unexpected active entry: %+v", v.Active)
	}

	if len(v.History) != 2 || v.Empty {
		t.Fatalf("unexpected history: %+v", v.History)
	}
	lost, won := v.History[0], v.History[1]
	if lost.GameNumber != 11 || lost.Badge != "❌" || lost.ResultText != "K♠ 7♦" || lost.TimeText != Placeholder {
		t.Errorf("unexpected lost entry: %+v", lost)
	}
	if won.GameNumber != 10 || won.TierText != "1" || won.ResultText != Placeholder || won.TimeText != "14/03 09:26" {
		t.Errorf("unexpected won entry: %+v", won)
	}
}

func TestProject_EmptyFeed(t *testing.T) {
	v := Project(Snapshot{}, Options{})

	if v.Active != nil {
		t.Errorf("expected no active entry, got %+v", v.Active)
	}
	if v.History == nil || len(v.History) != 0 || !v.Empty {
		t.Errorf("expected empty history, got %+v", v.History)
	}
	if v.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("unexpected default limit: %d", v.HistoryLimit)
	}
}

func TestParseSuit(t *testing.T) {
	tests := map[string]Suit{
		"♠":       Spade,
		"♠️":      Spade,
		"❤️":      Heart,
		"❤":       Heart,
		"♥️":      Heart,
		"♦":       Diamond,
		"♣️":      Club,
		" pique ": Spade,
		"Trèfle":  Club,
		"":        SuitUnknown,
		"joker":   SuitUnknown,
	}
	for raw, want := range tests {
		if got := ParseSuit(raw); got != want {
			t.Errorf("ParseSuit(%q) = %q, want %q", raw, got, want)
		}
	}
	if SuitUnknown.Display() != Placeholder {
		t.Errorf("unexpected unknown display: %q", SuitUnknown.Display())
	}
}
