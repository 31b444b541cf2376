package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Speech    SpeechConfig
	Audio     AudioConfig
	Retrieval RetrievalConfig
	Review    ReviewConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL       string
	WorkerModel   string
	GuardianModel string
	EmbedModel    string
}

// SpeechConfig points at the speech-to-text service. An empty BaseURL
// selects the scripted mock transcriber (no credentials required).
type SpeechConfig struct {
	BaseURL string
	APIKey  string
}

type AudioConfig struct {
	SampleRate    int
	ChunkDuration time.Duration
	// QueueSize bounds the chunk hand-off queue between the capture
	// goroutine and the pipeline consumer. When full, the oldest
	// unconsumed chunk is dropped so capture never stalls.
	QueueSize int
}

type RetrievalConfig struct {
	TopK int
}

type ReviewConfig struct {
	// QualityThreshold is the guardian score at or above which the
	// refined explanation and suggestion replace the worker's originals.
	QualityThreshold int
	Timeout          time.Duration
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			WorkerModel:   "granite4:tiny",
			GuardianModel: "granite3-guardian",
			EmbedModel:    "nomic-embed-text",
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			ChunkDuration: 2 * time.Second,
			QueueSize:     8,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Review: ReviewConfig{
			QualityThreshold: 7,
			Timeout:          15 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/aegis/config.json, then applies AEGIS_* environment
// variable overrides on top of the defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.ChunkDuration <= 0 {
		return fmt.Errorf("audio.chunk_duration must be positive, got %s", cfg.Audio.ChunkDuration)
	}
	if cfg.Audio.QueueSize <= 0 {
		return fmt.Errorf("audio.queue_size must be positive, got %d", cfg.Audio.QueueSize)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Review.QualityThreshold < 0 || cfg.Review.QualityThreshold > 10 {
		return fmt.Errorf("review.quality_threshold must be in [0,10], got %d", cfg.Review.QualityThreshold)
	}
	return nil
}
