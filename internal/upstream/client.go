// Package upstream provides the HTTP client for the Ollama chat API, local
// or cloud, and the reframer that turns its NDJSON stream into discrete
// frames.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pocketllama/chat-relay/internal/model"
)

// Target selects which inference endpoint a call is dispatched to.
type Target string

const (
	TargetLocal Target = "local"
	TargetCloud Target = "cloud"
)

// ChatPayload is the body forwarded to the upstream chat endpoint. Think is
// only set when the client asked for a reasoning effort other than "none".
type ChatPayload struct {
	Model    string              `json:"model"`
	Messages []model.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
	Think    string              `json:"think,omitempty"`
}

// TagsResponse is the model list returned by the local daemon. Entries are
// kept as raw JSON so the bridge serves them verbatim.
type TagsResponse struct {
	Models []json.RawMessage `json:"models"`
}

// StatusError is a non-success HTTP response from the upstream.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %s", e.Status)
}

// Config holds upstream endpoint configuration.
type Config struct {
	// LocalURL is the local Ollama daemon base URL.
	LocalURL string
	// CloudURL is the Ollama cloud API base URL.
	CloudURL string
	// APIKey authorizes cloud requests.
	APIKey string
	// StreamTimeout bounds an entire streaming exchange. Zero means no
	// timeout, matching the origin behavior.
	StreamTimeout time.Duration
}

// Client is the interface the relay depends on; tests substitute it.
type Client interface {
	// ChatStream dispatches a chat request and returns the raw NDJSON body.
	// The caller owns the ReadCloser.
	ChatStream(ctx context.Context, target Target, payload *ChatPayload) (io.ReadCloser, error)

	// ListLocalModels fetches the local daemon's model list.
	ListLocalModels(ctx context.Context) (*TagsResponse, error)

	// Healthy reports whether the local daemon answers its tags endpoint.
	Healthy(ctx context.Context) bool
}

// HTTPClient is the production Client over net/http.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPClient creates an upstream client.
func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// ChatStream implements Client. The returned body delivers newline-delimited
// JSON; closing it tears down the upstream connection, which also happens
// when ctx is cancelled (client disconnect).
func (c *HTTPClient) ChatStream(ctx context.Context, target Target, payload *ChatPayload) (io.ReadCloser, error) {
	url := c.cfg.LocalURL + "/api/chat"
	if target == TargetCloud {
		url = c.cfg.CloudURL + "/chat"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat payload: %w", err)
	}

	cancel := func() {}
	if c.cfg.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.StreamTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if target == TargetCloud {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// ListLocalModels implements Client.
func (c *HTTPClient) ListLocalModels(ctx context.Context) (*TagsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LocalURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tags request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tags request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var tags TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}
	return &tags, nil
}

// Healthy implements Client.
func (c *HTTPClient) Healthy(ctx context.Context) bool {
	_, err := c.ListLocalModels(ctx)
	return err == nil
}

// cancelReadCloser releases the stream-timeout context along with the body.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
