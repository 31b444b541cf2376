package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "AEGIS_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "ollama.base_url", typ: kString, env: "AEGIS_OLLAMA_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
	},
	{
		key: "ollama.worker_model", typ: kString, env: "AEGIS_OLLAMA_WORKER_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.WorkerModel = v.(string) },
	},
	{
		key: "ollama.guardian_model", typ: kString, env: "AEGIS_OLLAMA_GUARDIAN_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.GuardianModel = v.(string) },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "AEGIS_OLLAMA_EMBED_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
	},
	{
		key: "speech.base_url", typ: kString, env: "AEGIS_SPEECH_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Speech.BaseURL = v.(string) },
	},
	{
		key: "speech.api_key", typ: kString, env: "AEGIS_SPEECH_API_KEY",
		apply: func(cfg *Config, v any) { cfg.Speech.APIKey = v.(string) },
	},
	{
		key: "audio.sample_rate", typ: kInt, env: "AEGIS_AUDIO_SAMPLE_RATE",
		apply: func(cfg *Config, v any) { cfg.Audio.SampleRate = v.(int) },
	},
	{
		key: "audio.chunk_duration", typ: kDuration, env: "AEGIS_AUDIO_CHUNK_DURATION",
		apply: func(cfg *Config, v any) { cfg.Audio.ChunkDuration = v.(time.Duration) },
	},
	{
		key: "audio.queue_size", typ: kInt, env: "AEGIS_AUDIO_QUEUE_SIZE",
		apply: func(cfg *Config, v any) { cfg.Audio.QueueSize = v.(int) },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "AEGIS_RETRIEVAL_TOP_K",
		apply: func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
	},
	{
		key: "review.quality_threshold", typ: kInt, env: "AEGIS_REVIEW_QUALITY_THRESHOLD",
		apply: func(cfg *Config, v any) { cfg.Review.QualityThreshold = v.(int) },
	},
	{
		key: "review.timeout", typ: kDuration, env: "AEGIS_REVIEW_TIMEOUT",
		apply: func(cfg *Config, v any) { cfg.Review.Timeout = v.(time.Duration) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AEGIS_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "AEGIS_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
