// Package openai captions frames through any OpenAI-compatible multimodal
// chat endpoint (OpenAI, vLLM, LM Studio, ...).
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
)

const defaultTimeout = 120 * time.Second

// Config captures the runtime settings required to talk to the endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

// Backend implements backend.Backend over the chat completions API.
type Backend struct {
	client *openai.Client
	logger *slog.Logger
}

// New creates an OpenAI-compatible captioning backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientConfig.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &Backend{
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}
}

// Invoke sends the parts as a single user message. Temporal ids have no
// representation in the chat API and are dropped.
func (b *Backend) Invoke(ctx context.Context, model string, parts []backend.Part, temporalIDs [][]int, opts backend.Options) (string, error) {
	content := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case backend.PartImage:
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(part.Image),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		case backend.PartText:
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		}
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: content,
			},
		},
	}
	if v, ok := opts.Float("max_tokens"); ok {
		req.MaxTokens = int(v)
	}
	if v, ok := opts.Float("temperature"); ok {
		req.Temperature = float32(v)
	}

	b.logger.Debug("openai caption request", "model", model, "parts", len(content), "temporal_groups", len(temporalIDs))

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeBackend, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.CodeBackend, "openai chat completion: no choices returned")
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", apperrors.New(apperrors.CodeBackend,
			fmt.Sprintf("openai chat completion: empty content (finish_reason=%q)", choice.FinishReason))
	}
	return choice.Message.Content, nil
}
