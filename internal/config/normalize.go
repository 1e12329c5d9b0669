package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeCaption()
	c.normalizeBackend()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeEmbedding()
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}

func (c *Config) normalizeCaption() {
	c.Caption.Provider = strings.ToLower(strings.TrimSpace(c.Caption.Provider))
	c.Caption.ModelName = strings.TrimSpace(c.Caption.ModelName)
	c.Caption.ExtractionMode = strings.ToLower(strings.TrimSpace(c.Caption.ExtractionMode))
	if c.Caption.ExtractionMode == "" {
		c.Caption.ExtractionMode = defaultExtractionMode
	}
	c.Caption.Language = strings.TrimSpace(c.Caption.Language)
	if c.Caption.Language == "" {
		c.Caption.Language = defaultLanguage
	}
	c.Refine.ModelName = strings.TrimSpace(c.Refine.ModelName)
}

func (c *Config) normalizeBackend() {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	c.Backend.APIKey = strings.TrimSpace(c.Backend.APIKey)
	if c.Backend.APIKey == "" && c.Caption.Provider == ProviderOpenAI {
		c.Backend.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Kind = strings.ToLower(strings.TrimSpace(c.Storage.Kind))
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageJSON
	}
	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		c.Storage.OutputDir = defaultOutputDir
	}
	var err error
	if c.Storage.OutputDir, err = expandPath(c.Storage.OutputDir); err != nil {
		return fmt.Errorf("storage.output_dir: %w", err)
	}
	if pw := os.Getenv("VIDEORAG_DB_PASSWORD"); pw != "" && c.Storage.Postgres.Password == "" {
		c.Storage.Postgres.Password = pw
	}
	return nil
}

func (c *Config) normalizeTools() error {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobe
	}
	var err error
	if c.Tools.TempDir, err = expandPath(strings.TrimSpace(c.Tools.TempDir)); err != nil {
		return fmt.Errorf("tools.temp_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEmbedding() {
	c.Embedding.Model = strings.TrimSpace(c.Embedding.Model)
	c.Embedding.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embedding.BaseURL), "/")
	c.Embedding.APIKey = strings.TrimSpace(c.Embedding.APIKey)
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = defaultWorkers
	}
}
