// Package recommend asks a hosted text-generation API which server suits a
// free-text query. Every failure degrades to a fixed fallback result.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
	pkgerrors "shieldflow/pkg/errors"
)

// FallbackReason is the reason given when the service could not answer.
const FallbackReason = "service unavailable"

// Result is the outcome of one recommendation.
type Result struct {
	ServerID string
	Reason   string
	Fallback bool // true when ServerID is the default because the call failed
}

// ServerLister supplies the catalog that is offered to the model.
type ServerLister interface {
	GetAllServers(ctx context.Context, filter storage.ServerFilter) ([]*models.Server, error)
}

// ClientConfig represents client configuration
type ClientConfig struct {
	Endpoint        string
	Model           string
	APIKey          string
	Timeout         time.Duration
	DefaultServerID string
	UserAgent       string
}

// Client calls the generateContent endpoint. It keeps no state between calls
// and never retries.
type Client struct {
	client  *http.Client
	config  ClientConfig
	servers ServerLister
	logger  *zap.Logger
}

// NewClient creates a recommendation client
func NewClient(config ClientConfig, servers ServerLister, logger *zap.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.DefaultServerID == "" {
		config.DefaultServerID = "us-east-1"
	}
	if config.UserAgent == "" {
		config.UserAgent = "ShieldFlow/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:  config,
		servers: servers,
		logger:  logger,
	}
}

// Recommend returns the suggested server id for query. It never fails: a
// missing key, transport error, bad status or malformed answer all yield
// the fallback result.
func (c *Client) Recommend(ctx context.Context, query string) Result {
	if c.config.APIKey == "" {
		c.logger.Warn("recommendation skipped", zap.Error(pkgerrors.ErrMissingAPIKey))
		return c.fallback()
	}

	answer, err := c.generate(ctx, query)
	if err != nil {
		c.logger.Warn("recommendation failed",
			zap.Error(&pkgerrors.RecommendationError{Model: c.config.Model, Err: err}))
		return c.fallback()
	}

	return Result{ServerID: answer.RecommendedServerID, Reason: answer.Reason}
}

func (c *Client) fallback() Result {
	return Result{
		ServerID: c.config.DefaultServerID,
		Reason:   FallbackReason,
		Fallback: true,
	}
}

// answer is the JSON object the model is asked to produce.
type answer struct {
	RecommendedServerID string `json:"recommendedServerId"`
	Reason              string `json:"reason"`
}

func (c *Client) generate(ctx context.Context, query string) (*answer, error) {
	body, err := json.Marshal(c.buildRequest(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.config.Endpoint, "/"), c.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        url,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseResponse(data)
}

// parseResponse extracts the model's JSON answer from a generateContent
// response.
func parseResponse(data []byte) (*answer, error) {
	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("response has no candidates")
	}

	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	var ans answer
	if err := json.Unmarshal([]byte(text), &ans); err != nil {
		return nil, fmt.Errorf("malformed answer %q: %w", text, err)
	}
	ans.RecommendedServerID = strings.TrimSpace(ans.RecommendedServerID)
	if ans.RecommendedServerID == "" {
		return nil, fmt.Errorf("answer has no server id")
	}
	return &ans, nil
}

// HTTPError represents a non-200 answer
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s for %s", e.StatusCode, e.Status, e.URL)
}
