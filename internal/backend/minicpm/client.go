// Package minicpm talks to a MiniCPM-V inference server over HTTP.
//
// MiniCPM-V is the only backend that understands grouped temporal ids, so it
// is the default for packed video captioning. The server keeps the model on
// an accelerator; Release asks it to free cached device memory.
package minicpm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
)

const (
	defaultHTTPTimeout = 300 * time.Second
	defaultBaseURL     = "http://localhost:8000"
	captionPath        = "/v1/caption"
	releasePath        = "/v1/release"
)

// Config captures the runtime settings required to talk to the server.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Client implements backend.Backend and backend.Accelerator.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a MiniCPM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

type contentPart struct {
	Type  string `json:"type"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type captionRequest struct {
	Model       string          `json:"model"`
	Content     []contentPart   `json:"content"`
	TemporalIDs [][]int         `json:"temporal_ids,omitempty"`
	Params      backend.Options `json:"params,omitempty"`
}

type captionResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("minicpm request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Invoke posts the prompt to the caption endpoint.
func (c *Client) Invoke(ctx context.Context, model string, parts []backend.Part, temporalIDs [][]int, opts backend.Options) (string, error) {
	payload := captionRequest{
		Model:       model,
		Content:     make([]contentPart, 0, len(parts)),
		TemporalIDs: temporalIDs,
		Params:      opts,
	}
	for _, part := range parts {
		switch part.Type {
		case backend.PartImage:
			payload.Content = append(payload.Content, contentPart{
				Type:  "image",
				Image: base64.StdEncoding.EncodeToString(part.Image),
			})
		case backend.PartText:
			payload.Content = append(payload.Content, contentPart{Type: "text", Text: part.Text})
		}
	}

	body, err := c.post(ctx, captionPath, payload)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeBackend, "minicpm caption")
	}
	var resp captionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeBackend, "minicpm caption: decode response")
	}
	if resp.Error != "" {
		return "", apperrors.New(apperrors.CodeBackend, "minicpm caption: "+resp.Error)
	}
	return resp.Text, nil
}

// Release asks the server to empty its accelerator cache.
func (c *Client) Release(ctx context.Context) error {
	if _, err := c.post(ctx, releasePath, struct{}{}); err != nil {
		return apperrors.Wrap(err, apperrors.CodeBackend, "minicpm release")
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
