package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bdougie/videorag/internal/backend"
	"github.com/bdougie/videorag/internal/backend/minicpm"
	"github.com/bdougie/videorag/internal/backend/ollama"
	"github.com/bdougie/videorag/internal/backend/openai"
	"github.com/bdougie/videorag/internal/config"
	"github.com/bdougie/videorag/internal/embeddings"
	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/extractor"
	"github.com/bdougie/videorag/internal/frames"
	"github.com/bdougie/videorag/internal/models"
	"github.com/bdougie/videorag/internal/refiner"
	"github.com/bdougie/videorag/internal/storage"
)

// newBackend returns the captioning backend for cfg.Caption.Provider and the
// accelerator the refiner releases after each call.
func newBackend(ctx context.Context, cfg *config.Config, model string, logger *slog.Logger) (backend.Backend, backend.Accelerator, error) {
	switch cfg.Caption.Provider {
	case config.ProviderMiniCPM:
		client := minicpm.NewClient(minicpm.Config{
			BaseURL:        cfg.Backend.BaseURL,
			APIKey:         cfg.Backend.APIKey,
			TimeoutSeconds: cfg.Backend.TimeoutSeconds,
		})
		return client, client, nil
	case config.ProviderOllama:
		ollamaCfg, err := ollama.ConfigFromURL(cfg.Backend.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		b, err := ollama.New(ctx, ollamaCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Unloader(model), nil
	case config.ProviderOpenAI:
		b := openai.New(openai.Config{
			APIKey:         cfg.Backend.APIKey,
			BaseURL:        cfg.Backend.BaseURL,
			TimeoutSeconds: cfg.Backend.TimeoutSeconds,
		}, logger)
		return b, backend.NoopAccelerator{}, nil
	default:
		return nil, nil, apperrors.Newf(apperrors.CodeConfiguration, "caption.provider %q is not supported", cfg.Caption.Provider)
	}
}

func newExtractor(cfg *config.Config, logger *slog.Logger) *extractor.Extractor {
	return extractor.New(extractor.Options{
		Mode:         extractor.Mode(cfg.Caption.ExtractionMode),
		SamplingRate: cfg.Caption.SamplingRate,
		Limits: frames.Limits{
			MaxFrames:  cfg.Caption.MaxFrames,
			MaxPacking: cfg.Caption.MaxPacking,
		},
		TimeScale:    cfg.Caption.TimeScale,
		ForcePacking: cfg.Caption.ForcePacking,
		Width:        cfg.Caption.FrameWidth,
		Height:       cfg.Caption.FrameHeight,
		FFmpeg:       cfg.Tools.FFmpeg,
		FFprobe:      cfg.Tools.FFprobe,
		TempDir:      cfg.Tools.TempDir,
	}, nil, logger)
}

// searcher is implemented by stores that support similarity search.
type searcher interface {
	SearchSegments(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// store bundles the configured storage with the optional capabilities it
// offers. close releases the pool and the embedding workers.
type store struct {
	storage.Storage
	lookup refiner.SegmentLookup
	search searcher
	close  func()
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Storage.Kind {
	case config.StorageJSON:
		js := storage.NewJSONStore(cfg.Storage.OutputDir)
		return &store{Storage: js, lookup: js, close: func() {}}, nil
	case config.StorageNone:
		return &store{Storage: storage.Discard{}, close: func() {}}, nil
	case config.StoragePostgres:
		pool, err := storage.Connect(ctx, cfg.Storage.Postgres.ConnectionString())
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "storage.postgres")
		}
		var (
			embedder storage.Embedder
			service  *embeddings.Service
		)
		if cfg.Embedding.Enabled {
			service = embeddings.NewService(embeddings.NewOpenAIEmbedder(embeddings.OpenAIConfig{
				APIKey:     cfg.Embedding.APIKey,
				BaseURL:    cfg.Embedding.BaseURL,
				Model:      cfg.Embedding.Model,
				Dimensions: cfg.Embedding.Dimensions,
			}), cfg.Embedding.Workers, logger)
			embedder = service
		}
		pg := storage.NewPostgresStorage(pool, embedder, cfg.Embedding.Dimensions, logger)
		if err := pg.InitSchema(ctx); err != nil {
			if service != nil {
				service.Close()
			}
			pool.Close()
			return nil, err
		}
		s := &store{Storage: pg, lookup: pg, close: func() {
			if service != nil {
				service.Close()
			}
			pool.Close()
		}}
		if embedder != nil {
			s.search = pg
		}
		return s, nil
	default:
		return nil, apperrors.New(apperrors.CodeConfiguration, fmt.Sprintf("storage.kind %q is not supported", cfg.Storage.Kind))
	}
}
