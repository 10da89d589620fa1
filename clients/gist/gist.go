package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"suitfeed/config"

	"go.uber.org/zap"
)

const description = "suitfeed prediction archive"

var (
	// ErrDisabled is returned by every call when no token is configured.
	ErrDisabled = errors.New("gist client not configured")
	// ErrNotFound is returned when the gist or the file inside it is missing.
	ErrNotFound = errors.New("gist file not found")
)

// Storage is the interface for gist storage operations.
type Storage interface {
	IsEnabled() bool
	Load(ctx context.Context, filename string) (string, error)
	Save(ctx context.Context, filename, content string) error
	LoadJSON(ctx context.Context, filename string, dest any) error
	SaveJSON(ctx context.Context, filename string, data any) error
	GetGistID() string
}

var _ Storage = (*Client)(nil)

// Client stores files in a single GitHub gist. When no gist ID is known the
// first Save creates one and remembers its ID.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	token      string

	mu     sync.RWMutex
	gistID string
}

// GistFile represents a file in a gist.
type GistFile struct {
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content"`
}

// Gist represents a GitHub gist.
type Gist struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type gistRequest struct {
	Description string              `json:"description,omitempty"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
}

// NewClient creates a gist client bound to gistID, which may be empty.
func NewClient(logger *zap.Logger, cfg *config.Config, gistID string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Gist.Token == "" {
		logger.Warn("GITHUB_TOKEN not set, gist storage will be disabled")
	}

	baseURL := strings.TrimRight(cfg.Gist.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      cfg.Gist.Token,
		gistID:     gistID,
	}
}

// IsEnabled returns true if the client has a token.
func (c *Client) IsEnabled() bool {
	return c.token != ""
}

// GetGistID returns the current gist ID.
func (c *Client) GetGistID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gistID
}

// SaveJSON saves data as indented JSON.
func (c *Client) SaveJSON(ctx context.Context, filename string, data any) error {
	if !c.IsEnabled() {
		return ErrDisabled
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.Save(ctx, filename, string(jsonData))
}

// Save writes a single file, creating the gist on first use.
func (c *Client) Save(ctx context.Context, filename, content string) error {
	if !c.IsEnabled() {
		return ErrDisabled
	}

	body, err := json.Marshal(gistRequest{
		Description: description,
		Files:       map[string]GistFile{filename: {Content: content}},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	gistID := c.GetGistID()
	method, url := http.MethodPost, c.baseURL+"/gists"
	if gistID != "" {
		method, url = http.MethodPatch, c.baseURL+"/gists/"+gistID
	}

	var gist Gist
	if err := c.do(ctx, method, url, body, &gist); err != nil {
		return err
	}

	if gistID == "" {
		c.mu.Lock()
		c.gistID = gist.ID
		c.mu.Unlock()
		c.logger.Info("created new gist", zap.String("id", gist.ID))
	}

	c.logger.Debug("saved to gist",
		zap.String("filename", filename),
		zap.Int("bytes", len(content)),
	)
	return nil
}

// LoadJSON decodes a JSON file into dest.
func (c *Client) LoadJSON(ctx context.Context, filename string, dest any) error {
	content, err := c.Load(ctx, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), dest); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}
	return nil
}

// Load returns the raw content of a file.
func (c *Client) Load(ctx context.Context, filename string) (string, error) {
	if !c.IsEnabled() {
		return "", ErrDisabled
	}

	gistID := c.GetGistID()
	if gistID == "" {
		return "", ErrNotFound
	}

	var gist Gist
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/gists/"+gistID, nil, &gist); err != nil {
		return "", err
	}

	file, ok := gist.Files[filename]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}

	c.logger.Debug("loaded from gist",
		zap.String("filename", filename),
		zap.Int("bytes", len(file.Content)),
	)
	return file.Content, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, dest any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error status=%d body=%s", resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
