// Package ollama captions frames with a local Ollama vision model through the
// agent-api provider.
package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/core/memory/array"
	ollamaprovider "github.com/agent-api/ollama"
	"github.com/go-logr/logr"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
)

const (
	defaultHost = "http://localhost"
	defaultPort = 11434

	systemPrompt = "You are a visual analysis assistant that describes video clips. The images are consecutive frames of one clip in temporal order."
)

// Config captures where the Ollama server lives.
type Config struct {
	Host string
	Port int
}

// Backend runs one short-lived agent per Invoke. Agents keep their history in
// memory and resend it, so sharing one across segments would leak earlier
// frames into later captions.
type Backend struct {
	cfg    Config
	logger *slog.Logger
	logr   logr.Logger
	http   *http.Client

	newProvider func() core.Provider
}

// New checks that the server is reachable and returns a backend bound to it.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = defaultHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	b := &Backend{
		cfg:    cfg,
		logger: logger,
		logr:   logr.FromSlogHandler(logger.With("component", "agent-api").Handler()),
		http:   &http.Client{Timeout: 10 * time.Second},
	}
	b.newProvider = b.ollamaProvider
	if err := b.ping(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "ollama server not reachable at "+b.baseURL())
	}
	// The agent-api provider always dials the local default address.
	if b.baseURL() != fmt.Sprintf("%s:%d", defaultHost, defaultPort) {
		logger.Warn("ollama provider ignores the configured host for chat requests",
			"configured", b.baseURL(),
			"chat_endpoint", fmt.Sprintf("%s:%d/api/chat", defaultHost, defaultPort),
		)
	}
	return b, nil
}

func (b *Backend) baseURL() string {
	return fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port)
}

func (b *Backend) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL()+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /api/tags: http %d", resp.StatusCode)
	}
	return nil
}

func (b *Backend) ollamaProvider() core.Provider {
	return ollamaprovider.NewProvider(&ollamaprovider.ProviderOpts{
		BaseURL: b.cfg.Host,
		Port:    b.cfg.Port,
		Logger:  &b.logr,
	})
}

func (b *Backend) newAgent(ctx context.Context, model string) (*agent.Agent, error) {
	provider := b.newProvider()
	if err := provider.UseModel(ctx, &core.Model{ID: model}); err != nil {
		return nil, fmt.Errorf("use model %s: %w", model, err)
	}
	return agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithSystemPrompt(systemPrompt),
		bootstrap.WithLogger(&b.logr),
		bootstrap.WithMemory(array.NewArrayMemoryBackend()),
	)
}

// firstReply stops the run at the model's first answer; no tools are registered.
func firstReply(*agent.AgentRunAggregator) bool { return true }

// Invoke attaches every image part to a single user message whose content is
// the joined text parts. Temporal ids and options are not supported by the
// provider.
func (b *Backend) Invoke(ctx context.Context, model string, parts []backend.Part, temporalIDs [][]int, opts backend.Options) (string, error) {
	var prompt []string
	var runOpts []agent.RunOptionFunc
	images := 0
	for _, part := range parts {
		switch part.Type {
		case backend.PartImage:
			runOpts = append(runOpts, agent.WithImageBase64(base64.StdEncoding.EncodeToString(part.Image), "image/jpeg"))
			images++
		case backend.PartText:
			prompt = append(prompt, part.Text)
		}
	}
	runOpts = append(runOpts,
		agent.WithInput(strings.Join(prompt, "\n")),
		agent.WithStopCondition(firstReply),
	)

	b.logger.Debug("ollama caption request", "model", model, "images", images, "temporal_groups", len(temporalIDs))

	a, err := b.newAgent(ctx, model)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeBackend, "create ollama agent")
	}
	agg, err := a.Run(ctx, runOpts...)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeBackend, "ollama agent run")
	}
	for i := len(agg.Messages) - 1; i >= 0; i-- {
		if m := agg.Messages[i]; m != nil && m.Role == core.AssistantMessageRole {
			return m.Content, nil
		}
	}
	return "", apperrors.New(apperrors.CodeBackend, "no response messages received from model")
}

// ConfigFromURL splits a base URL such as http://gpu-box:11434 into the host
// and port the provider expects. An empty URL yields the local defaults.
func ConfigFromURL(raw string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return cfg, apperrors.Newf(apperrors.CodeConfiguration, "backend.base_url %q is not a valid URL", raw)
	}
	cfg.Host = u.Scheme + "://" + u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return cfg, apperrors.Newf(apperrors.CodeConfiguration, "backend.base_url %q has an invalid port", raw)
		}
		cfg.Port = port
	}
	return cfg, nil
}
