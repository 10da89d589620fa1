package notifier

import (
	"fmt"
	"time"

	"suitfeed/internal/feed"
)

// AlertKind indicates which feed transition triggered an alert.
type AlertKind string

const (
	AlertKindNewPrediction AlertKind = "new_prediction"
	AlertKindWon           AlertKind = "prediction_won"
	AlertKindLost          AlertKind = "prediction_lost"
)

// PredictionAlert contains everything a channel needs to render an alert.
type PredictionAlert struct {
	Kind       AlertKind
	GameNumber int
	Suit       feed.Suit
	Status     string
	Outcome    feed.Outcome
	CatchUp    int
	Result     string

	// Server-side counters at the time the transition was observed
	Stats feed.Stats

	Timestamp time.Time
}

// Title is a short headline shared by all channels.
func (a PredictionAlert) Title() string {
	switch a.Kind {
	case AlertKindNewPrediction:
		return fmt.Sprintf("🎰 Prediction #%d", a.GameNumber)
	case AlertKindWon:
		return fmt.Sprintf("✅ Prediction #%d won", a.GameNumber)
	case AlertKindLost:
		return fmt.Sprintf("❌ Prediction #%d lost", a.GameNumber)
	default:
		return fmt.Sprintf("Prediction #%d", a.GameNumber)
	}
}

// Notifier is the interface for sending prediction alerts to a channel.
type Notifier interface {
	SendPredictionAlert(alert PredictionAlert)
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier, dropping nil entries.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendPredictionAlert sends the alert to every registered notifier.
func (m *MultiNotifier) SendPredictionAlert(alert PredictionAlert) {
	for _, n := range m.notifiers {
		n.SendPredictionAlert(alert)
	}
}

// Close closes all registered notifiers and returns the last error.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
