package config

const (
	ProviderMiniCPM = "minicpm"
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"

	StorageJSON     = "json"
	StoragePostgres = "postgres"
	StorageNone     = "none"
)

const (
	defaultProvider       = ProviderMiniCPM
	defaultModelName      = "openbmb/MiniCPM-V-2_6-int4"
	defaultSamplingRate   = 3
	defaultMaxFrames      = 180
	defaultMaxPacking     = 3
	defaultTimeScale      = 0.1
	defaultExtractionMode = "full"
	defaultFrameWidth     = 1280
	defaultFrameHeight    = 720
	defaultLanguage       = "English"
	defaultWorkers        = 4
	defaultRefineFrames   = 15
	defaultTimeoutSeconds = 300
	defaultFFmpeg         = "ffmpeg"
	defaultFFprobe        = "ffprobe"
	defaultOutputDir      = "~/.local/share/videorag"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultEmbeddingDims  = 1536
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Caption: Caption{
			Provider:       defaultProvider,
			ModelName:      defaultModelName,
			SamplingRate:   defaultSamplingRate,
			MaxFrames:      defaultMaxFrames,
			MaxPacking:     defaultMaxPacking,
			TimeScale:      defaultTimeScale,
			ExtractionMode: defaultExtractionMode,
			FrameWidth:     defaultFrameWidth,
			FrameHeight:    defaultFrameHeight,
			Language:       defaultLanguage,
			Workers:        defaultWorkers,
		},
		Refine: Refine{
			NumFrames: defaultRefineFrames,
		},
		Backend: Backend{
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
		},
		Storage: Storage{
			Kind:      StorageJSON,
			OutputDir: defaultOutputDir,
			Postgres: Postgres{
				Host:    "localhost",
				Port:    5432,
				User:    "postgres",
				DBName:  "videorag",
				SSLMode: "disable",
			},
		},
		Embedding: Embedding{
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDims,
			Workers:    defaultWorkers,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
