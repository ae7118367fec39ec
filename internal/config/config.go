package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	// TopK is the number of candidates returned by semantic queries.
	TopK int

	// RebuildPoll is how often the reindex worker checks the catalog
	// revision for changes.
	RebuildPoll time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5001,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			// all-minilm is small (384 dims); the catalog fits comfortably
			// in memory even on modest machines.
			EmbedModel: "all-minilm",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:        20,
			RebuildPoll: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookdex"
	}
	return home + "/.bookdex"
}

// Load reads configuration from defaults, an optional .env file in the
// working directory, and BOOKDEX_* environment variables. Environment
// variables take precedence over .env values, which godotenv guarantees by
// never overriding variables that are already set.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadFromEnv(os.Getenv)
}

func loadFromEnv(getenv func(string) string) (Config, error) {
	cfg := defaults()

	getString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	getString("BOOKDEX_OLLAMA_URL", &cfg.Ollama.BaseURL)
	getString("BOOKDEX_EMBED_MODEL", &cfg.Ollama.EmbedModel)
	getString("BOOKDEX_DATA_DIR", &cfg.Storage.DataDir)
	getString("BOOKDEX_LOG_LEVEL", &cfg.Log.Level)

	if v := getenv("BOOKDEX_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BOOKDEX_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}

	if v := getenv("BOOKDEX_TOP_K"); v != "" {
		topK, err := strconv.Atoi(v)
		if err != nil || topK <= 0 {
			return Config{}, fmt.Errorf("invalid BOOKDEX_TOP_K %q", v)
		}
		cfg.Retrieval.TopK = topK
	}

	if v := getenv("BOOKDEX_REBUILD_POLL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BOOKDEX_REBUILD_POLL %q: %w", v, err)
		}
		cfg.Retrieval.RebuildPoll = d
	}

	return cfg, nil
}
