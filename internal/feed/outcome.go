package feed

import (
	"regexp"
	"strconv"
	"strings"
)

// OutcomeKind is the resolution state of a prediction.
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeWon
	OutcomeLost
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	default:
		return "pending"
	}
}

// MarshalText lets OutcomeKind appear as a string in JSON views.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText. Unknown names
// decode as pending.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "won":
		*k = OutcomeWon
	case "lost":
		*k = OutcomeLost
	default:
		*k = OutcomePending
	}
	return nil
}

// Outcome is the classified form of a status text. Tier is only meaningful
// when Kind is OutcomeWon and HasTier is set.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Tier    int         `json:"tier,omitempty"`
	HasTier bool        `json:"has_tier"`
}

// Pending reports whether the outcome is still unresolved.
func (o Outcome) Pending() bool { return o.Kind == OutcomePending }

// Resolved reports whether the outcome is won or lost.
func (o Outcome) Resolved() bool { return o.Kind != OutcomePending }

// TierText returns the tier digit or the placeholder.
func (o Outcome) TierText() string {
	if o.Kind != OutcomeWon || !o.HasTier {
		return Placeholder
	}
	return strconv.Itoa(o.Tier)
}

// Badge renders the compact status badge: ✅N, ✅, ❌ or ⏳.
func (o Outcome) Badge() string {
	switch o.Kind {
	case OutcomeWon:
		if o.HasTier {
			return WonMarker + strconv.Itoa(o.Tier)
		}
		return WonMarker
	case OutcomeLost:
		return LostMarker
	default:
		return PendingMarker
	}
}

const (
	WonMarker     = "✅"
	LostMarker    = "❌"
	PendingMarker = "⏳"
	QueuedMarker  = "🔮"
)

var (
	wonKeywords  = []string{"GAGNÉ", "GAGNE"}
	lostKeywords = []string{"PERDU"}

	markerTierRe = regexp.MustCompile(WonMarker + `([0-9])`)
	anyDigitRe   = regexp.MustCompile(`[0-9]`)
)

// Classify parses a raw status text. Rules are applied in order:
//
//  1. won marker immediately followed by a digit: won with that tier
//  2. won marker or affirmative keyword: won, tier from the first digit if any
//  3. lost marker or negative keyword: lost
//  4. anything else: pending
//
// Keyword matching is intentionally case-insensitive: "gagné" classifies
// like "GAGNÉ". Only GAGNÉ, GAGNE and PERDU are keywords.
func Classify(status string) Outcome {
	if m := markerTierRe.FindStringSubmatch(status); m != nil {
		return Outcome{Kind: OutcomeWon, Tier: int(m[1][0] - '0'), HasTier: true}
	}

	upper := strings.ToUpper(status)
	if strings.Contains(status, WonMarker) || containsAny(upper, wonKeywords) {
		if d := anyDigitRe.FindString(status); d != "" {
			return Outcome{Kind: OutcomeWon, Tier: int(d[0] - '0'), HasTier: true}
		}
		return Outcome{Kind: OutcomeWon}
	}

	if strings.Contains(status, LostMarker) || containsAny(upper, lostKeywords) {
		return Outcome{Kind: OutcomeLost}
	}

	return Outcome{Kind: OutcomePending}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
