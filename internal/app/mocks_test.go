package app

import (
	"context"
	"encoding/json"
	"sync"

	"suitfeed/clients/gist"
	"suitfeed/clients/notifier"
	"suitfeed/clients/predictionapi"
	"suitfeed/internal/feed"
)

// MockSnapshotStore is a mock implementation of SnapshotStore for testing.
type MockSnapshotStore struct {
	mu      sync.RWMutex
	files   map[string]string
	enabled bool
	loadErr error
	saveErr error
	saves   int
}

// NewMockSnapshotStore creates a new mock store.
func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{
		files:   make(map[string]string),
		enabled: true,
	}
}

// IsEnabled returns whether the mock is enabled.
func (m *MockSnapshotStore) IsEnabled() bool {
	return m.enabled
}

// SetEnabled sets whether the mock is enabled.
func (m *MockSnapshotStore) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// LoadJSON decodes a stored file. Missing files report gist.ErrNotFound.
func (m *MockSnapshotStore) LoadJSON(ctx context.Context, name string, dest any) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	m.mu.RLock()
	content, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return gist.ErrNotFound
	}
	return json.Unmarshal([]byte(content), dest)
}

// SaveJSON encodes data into a file.
func (m *MockSnapshotStore) SaveJSON(ctx context.Context, name string, data any) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = string(jsonData)
	m.saves++
	return nil
}

// PingingSnapshotStore adds a connectivity check to MockSnapshotStore.
type PingingSnapshotStore struct {
	*MockSnapshotStore
	pingErr error
	pings   int
}

func (m *PingingSnapshotStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.pingErr
}

func (m *PingingSnapshotStore) Pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// SetLoadError sets an error to be returned on Load calls.
func (m *MockSnapshotStore) SetLoadError(err error) {
	m.loadErr = err
}

// SetSaveError sets an error to be returned on Save calls.
func (m *MockSnapshotStore) SetSaveError(err error) {
	m.saveErr = err
}

// SetContent sets the content for a file.
func (m *MockSnapshotStore) SetContent(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = content
}

// GetContent returns the content for a file.
func (m *MockSnapshotStore) GetContent(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[name]
}

// Saves returns the number of successful saves.
func (m *MockSnapshotStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// MockFeedSource returns queued responses in order, repeating the last one.
type MockFeedSource struct {
	mu        sync.Mutex
	responses []*predictionapi.PredictionsResponse
	errs      []error
	calls     int
	limits    []int
}

// Push queues a response or an error for the next call.
func (m *MockFeedSource) Push(resp *predictionapi.PredictionsResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, err)
}

// GetPredictions implements FeedSource.
func (m *MockFeedSource) GetPredictions(ctx context.Context, limit int) (*predictionapi.PredictionsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limits = append(m.limits, limit)
	idx := m.calls
	m.calls++
	if len(m.responses) == 0 {
		return &predictionapi.PredictionsResponse{}, nil
	}
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], m.errs[idx]
}

// Calls returns the number of fetches.
func (m *MockFeedSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Limits returns the limit passed on every fetch.
func (m *MockFeedSource) Limits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.limits...)
}

// MockNotifier records alerts.
type MockNotifier struct {
	mu     sync.Mutex
	alerts []notifier.PredictionAlert
	closed bool
}

// SendPredictionAlert implements notifier.Notifier.
func (m *MockNotifier) SendPredictionAlert(alert notifier.PredictionAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

// Close implements notifier.Notifier.
func (m *MockNotifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Alerts returns the recorded alerts.
func (m *MockNotifier) Alerts() []notifier.PredictionAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifier.PredictionAlert(nil), m.alerts...)
}

// MockSession records session calls.
type MockSession struct {
	mu      sync.Mutex
	user    *predictionapi.UserInfo
	userErr error
	logouts int
}

// GetUser implements SessionClient.
func (m *MockSession) GetUser(ctx context.Context) (*predictionapi.UserInfo, error) {
	if m.userErr != nil {
		return nil, m.userErr
	}
	if m.user == nil {
		return &predictionapi.UserInfo{}, nil
	}
	return m.user, nil
}

// Logout implements SessionClient.
func (m *MockSession) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	return nil
}

// Logouts returns the number of logout calls.
func (m *MockSession) Logouts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logouts
}

// prediction builds a wire prediction.
func prediction(game int, suit, status string) predictionapi.Prediction {
	return predictionapi.Prediction{
		GameNumber: game,
		Suit:       suit,
		Status:     status,
		Timestamp:  "2025-03-14T09:26:00",
	}
}

// response builds a feed response from predictions, oldest first.
func response(preds ...predictionapi.Prediction) *predictionapi.PredictionsResponse {
	resp := &predictionapi.PredictionsResponse{
		Predictions:      preds,
		TotalPredictions: len(preds),
	}
	for _, p := range preds {
		switch p.Record().Outcome().Kind {
		case feed.OutcomeWon:
			resp.WonPredictions++
		case feed.OutcomeLost:
			resp.LostPredictions++
		}
	}
	return resp
}
