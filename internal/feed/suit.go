package feed

import "strings"

// Suit is one of the four card suits a prediction can target.
type Suit string

const (
	SuitUnknown Suit = ""
	Spade       Suit = "♠"
	Heart       Suit = "♥"
	Diamond     Suit = "♦"
	Club        Suit = "♣"
)

// suitAliases maps emoji and textual variants onto the bare symbol.
// Order matters: multi-rune variants are checked before the bare symbols.
var suitAliases = []struct {
	alias string
	suit  Suit
}{
	{"❤️", Heart},
	{"♥️", Heart},
	{"❤", Heart},
	{"♠️", Spade},
	{"♦️", Diamond},
	{"♣️", Club},
	{"♥", Heart},
	{"♠", Spade},
	{"♦", Diamond},
	{"♣", Club},
	{"heart", Heart},
	{"coeur", Heart},
	{"cœur", Heart},
	{"spade", Spade},
	{"pique", Spade},
	{"diamond", Diamond},
	{"carreau", Diamond},
	{"club", Club},
	{"trefle", Club},
	{"trèfle", Club},
}

// ParseSuit normalizes a raw suit string. Unrecognized input yields SuitUnknown.
func ParseSuit(raw string) Suit {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return SuitUnknown
	}
	for _, a := range suitAliases {
		if strings.Contains(s, a.alias) {
			return a.suit
		}
	}
	return SuitUnknown
}

// Display returns the emoji form used by chat alerts and the dashboard.
func (s Suit) Display() string {
	switch s {
	case Spade:
		return "♠️"
	case Heart:
		return "❤️"
	case Diamond:
		return "♦️"
	case Club:
		return "♣️"
	default:
		return Placeholder
	}
}

// Name returns a lowercase english name, used for CSS classes and logs.
func (s Suit) Name() string {
	switch s {
	case Spade:
		return "spade"
	case Heart:
		return "heart"
	case Diamond:
		return "diamond"
	case Club:
		return "club"
	default:
		return "unknown"
	}
}
