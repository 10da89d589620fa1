package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder is rendered for any missing optional field.
const Placeholder = "-"

// Record is a single prediction as delivered by the feed, oldest first.
type Record struct {
	GameNumber int       `json:"game_number"`
	Suit       Suit      `json:"suit"`
	Status     string    `json:"status"`
	CatchUp    int       `json:"catch_up"`
	Timestamp  time.Time `json:"timestamp"`
	Result     string    `json:"result,omitempty"`
}

// Outcome classifies the record's status text.
func (r Record) Outcome() Outcome {
	return Classify(r.Status)
}

// Stats are the server-side counters. They are passed through untouched.
type Stats struct {
	Total       int             `json:"total"`
	Won         int             `json:"won"`
	Lost        int             `json:"lost"`
	WinRate     decimal.Decimal `json:"win_rate"`
	CurrentGame int             `json:"current_game"`
	ChannelOK   bool            `json:"channel_ok"`
}

// Viewer describes the session the feed was fetched for.
type Viewer struct {
	FirstName       string    `json:"first_name"`
	SubscriptionEnd time.Time `json:"subscription_end"`
}

// Snapshot is one immutable fetch of the feed.
type Snapshot struct {
	Records   []Record
	Stats     Stats
	Viewer    *Viewer
	FetchedAt time.Time
}
