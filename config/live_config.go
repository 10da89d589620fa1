package config

import (
	"sync"
	"time"
)

// ConfigObserver is notified after every successful update.
type ConfigObserver interface {
	OnConfigUpdate(cfg *Config)
}

// ObserverFunc adapts a function to ConfigObserver.
type ObserverFunc func(cfg *Config)

func (f ObserverFunc) OnConfigUpdate(cfg *Config) { f(cfg) }

// LiveConfig is a thread-safe holder for the active Config.
type LiveConfig struct {
	mu          sync.RWMutex
	config      *Config
	lastUpdated time.Time
	version     int

	obsMu     sync.RWMutex
	observers []ConfigObserver
}

// NewLiveConfig creates a LiveConfig seeded with initial, or Defaults when nil.
func NewLiveConfig(initial *Config) *LiveConfig {
	if initial == nil {
		initial = Defaults()
	}
	return &LiveConfig{
		config:      initial.Clone(),
		lastUpdated: time.Now(),
		version:     1,
	}
}

// Get returns a copy of the current config.
func (lc *LiveConfig) Get() *Config {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.config.Clone()
}

// Update validates and swaps in newConfig, then notifies observers with
// their own copy. Invalid configs are rejected with *ConfigValidationError.
func (lc *LiveConfig) Update(newConfig *Config) error {
	if newConfig == nil {
		return nil
	}

	if result := newConfig.Validate(); !result.Valid {
		return &ConfigValidationError{Errors: result.Errors}
	}

	cloned := newConfig.Clone()

	lc.mu.Lock()
	lc.config = cloned
	lc.lastUpdated = time.Now()
	lc.version++
	lc.mu.Unlock()

	lc.notifyObservers(cloned)
	return nil
}

// UpdatePartial applies updateFn to a copy of the current config and stores it.
func (lc *LiveConfig) UpdatePartial(updateFn func(*Config)) error {
	next := lc.Get()
	updateFn(next)
	return lc.Update(next)
}

// AddObserver registers obs for change notifications.
func (lc *LiveConfig) AddObserver(obs ConfigObserver) {
	if obs == nil {
		return
	}
	lc.obsMu.Lock()
	defer lc.obsMu.Unlock()
	lc.observers = append(lc.observers, obs)
}

func (lc *LiveConfig) notifyObservers(cfg *Config) {
	lc.obsMu.RLock()
	observers := make([]ConfigObserver, len(lc.observers))
	copy(observers, lc.observers)
	lc.obsMu.RUnlock()

	// Called outside the locks so observers may read the config back.
	for _, obs := range observers {
		obs.OnConfigUpdate(cfg.Clone())
	}
}

// LastUpdated returns when the config was last replaced.
func (lc *LiveConfig) LastUpdated() time.Time {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.lastUpdated
}

// Version increments on every successful update, starting at 1.
func (lc *LiveConfig) Version() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.version
}

// ConfigValidationError is returned when config validation fails.
type ConfigValidationError struct {
	Errors []ValidationError
}

func (e *ConfigValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "config validation failed"
	}
	return "config validation failed: " + e.Errors[0].Field + ": " + e.Errors[0].Message
}
