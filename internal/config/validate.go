package config

import (
	"fmt"

	apperrors "github.com/bdougie/videorag/internal/errors"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCaption(); err != nil {
		return err
	}
	if err := c.validateRefine(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperrors.New(apperrors.CodeConfiguration, fmt.Sprintf(format, args...))
}

func (c *Config) validateCaption() error {
	cp := c.Caption
	switch cp.Provider {
	case ProviderMiniCPM, ProviderOllama, ProviderOpenAI:
	case "":
		return invalid("caption.provider is required (minicpm, ollama or openai)")
	default:
		return invalid("caption.provider: unsupported value %q", cp.Provider)
	}
	if cp.ModelName == "" {
		return invalid("caption.model_name is required")
	}
	if cp.SamplingRate <= 0 {
		return invalid("caption.sampling_rate must be positive")
	}
	if cp.MaxFrames <= 0 {
		return invalid("caption.max_frames must be positive")
	}
	if cp.MaxPacking <= 0 {
		return invalid("caption.max_packing must be positive")
	}
	if cp.TimeScale <= 0 {
		return invalid("caption.time_scale must be positive")
	}
	if cp.ForcePacking < 0 {
		return invalid("caption.force_packing must be zero or positive")
	}
	switch cp.ExtractionMode {
	case "full", "subclip":
	default:
		return invalid("caption.extraction_mode: unsupported value %q (full or subclip)", cp.ExtractionMode)
	}
	if cp.FrameWidth <= 0 || cp.FrameHeight <= 0 {
		return invalid("caption.frame_width and caption.frame_height must be positive")
	}
	if cp.Workers <= 0 {
		return invalid("caption.workers must be positive")
	}
	if c.Backend.TimeoutSeconds < 0 {
		return invalid("backend.timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateRefine() error {
	if c.Refine.NumFrames <= 0 {
		return invalid("refine.num_frames must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Kind {
	case StorageJSON, StorageNone:
	case StoragePostgres:
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.DBName == "" {
			return invalid("storage.postgres.host and storage.postgres.dbname are required")
		}
		if c.Embedding.Enabled && c.Embedding.Dimensions <= 0 {
			return invalid("embedding.dimensions must be positive")
		}
	default:
		return invalid("storage.kind: unsupported value %q (json, postgres or none)", c.Storage.Kind)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return invalid("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
