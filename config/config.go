// Package config loads the application settings. Priority, lowest first:
// built-in defaults, TOML files in the order given, .env files, then
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Logging    LoggingConfig    `toml:"logging"`
	Corpus     CorpusConfig     `toml:"corpus"`
	Chunking   ChunkingConfig   `toml:"chunking"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Index      IndexConfig      `toml:"index"`
	Generation GenerationConfig `toml:"generation"`
	Nutrients  NutrientsConfig  `toml:"nutrients"`
	Storage    StorageConfig    `toml:"storage"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // trace, debug, info, warn, error
	Format string `toml:"format"` // "text" or "json"
}

type CorpusConfig struct {
	Dir              string `toml:"dir"`
	Watch            bool   `toml:"watch"`
	UnidocLicenseKey string `toml:"unidoc_license_key"`
}

type ChunkingConfig struct {
	Strategy string `toml:"strategy"` // "window" or "recursive"
	Size     int    `toml:"size"`
	Overlap  int    `toml:"overlap"`
}

type EmbeddingConfig struct {
	Provider  string `toml:"provider"` // "gemini" or "ollama"
	Model     string `toml:"model"`
	OllamaURL string `toml:"ollama_url"`
	BatchSize int    `toml:"batch_size"`
	Pause     string `toml:"pause"`   // e.g. "4s", wait between batches
	Backoff   string `toml:"backoff"` // e.g. "10s", wait before the single retry
}

type IndexConfig struct {
	Backend    string `toml:"backend"` // "flat" or "chroma"
	Path       string `toml:"path"`
	Collection string `toml:"collection"`
	ChromaURL  string `toml:"chroma_url"`
	TopK       int    `toml:"top_k"`
}

type GenerationConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

type NutrientsConfig struct {
	TablePath      string  `toml:"table_path"`
	MatchThreshold float64 `toml:"match_threshold"`
}

type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // empty disables plan persistence
}

// NewDefaultConfig returns the settings used when nothing overrides them.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Corpus: CorpusConfig{
			Dir:   "knowledge_base",
			Watch: true,
		},
		Chunking: ChunkingConfig{
			Strategy: "window",
			Size:     2000,
			Overlap:  200,
		},
		Embedding: EmbeddingConfig{
			Provider:  "gemini",
			Model:     "text-embedding-004",
			OllamaURL: "http://localhost:11434/api/embeddings",
			BatchSize: 10,
			Pause:     "4s",
			Backoff:   "10s",
		},
		Index: IndexConfig{
			Backend:    "flat",
			Path:       "data/index.db",
			Collection: "nutri-knowledge",
			TopK:       5,
		},
		Generation: GenerationConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
			Timeout:     "2m",
		},
		Nutrients: NutrientsConfig{
			TablePath:      "alimenti.csv",
			MatchThreshold: 0.5,
		},
		Storage: StorageConfig{
			SQLitePath: "data/sessions.db",
		},
	}
}

// Load builds a Config from the defaults, each TOML file in order (later
// files win), and the environment. Empty paths are skipped.
func Load(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("NUTRI_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("NUTRI_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("NUTRI_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("NUTRI_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if dir := os.Getenv("NUTRI_CORPUS_DIR"); dir != "" {
		cfg.Corpus.Dir = dir
	}
	if watch := os.Getenv("NUTRI_CORPUS_WATCH"); watch != "" {
		if b, err := strconv.ParseBool(watch); err == nil {
			cfg.Corpus.Watch = b
		}
	}
	if key := os.Getenv("UNIDOC_LICENSE_KEY"); key != "" {
		cfg.Corpus.UnidocLicenseKey = key
	}
	if strategy := os.Getenv("NUTRI_CHUNKING_STRATEGY"); strategy != "" {
		cfg.Chunking.Strategy = strategy
	}
	if provider := os.Getenv("NUTRI_EMBEDDING_PROVIDER"); provider != "" {
		cfg.Embedding.Provider = provider
	}
	if model := os.Getenv("NUTRI_EMBEDDING_MODEL"); model != "" {
		cfg.Embedding.Model = model
	}
	if url := os.Getenv("NUTRI_OLLAMA_URL"); url != "" {
		cfg.Embedding.OllamaURL = url
	}
	if backend := os.Getenv("NUTRI_INDEX_BACKEND"); backend != "" {
		cfg.Index.Backend = backend
	}
	if path := os.Getenv("NUTRI_INDEX_PATH"); path != "" {
		cfg.Index.Path = path
	}
	if url := os.Getenv("NUTRI_CHROMA_URL"); url != "" {
		cfg.Index.ChromaURL = url
	}
	if apiKey := os.Getenv("NUTRI_GEMINI_API_KEY"); apiKey != "" {
		cfg.Generation.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.Generation.APIKey = apiKey
	}
	if model := os.Getenv("NUTRI_GEMINI_MODEL"); model != "" {
		cfg.Generation.Model = model
	}
	if table := os.Getenv("NUTRI_NUTRIENTS_TABLE"); table != "" {
		cfg.Nutrients.TablePath = table
	}
	if threshold := os.Getenv("NUTRI_MATCH_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.Nutrients.MatchThreshold = f
		}
	}
	if path, ok := os.LookupEnv("NUTRI_SQLITE_PATH"); ok {
		cfg.Storage.SQLitePath = path
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Chunking.Strategy) {
	case "window", "recursive":
	default:
		return fmt.Errorf("chunking.strategy: unknown strategy %q", c.Chunking.Strategy)
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider)
	}
	switch strings.ToLower(c.Index.Backend) {
	case "flat", "chroma":
	default:
		return fmt.Errorf("index.backend: unknown backend %q", c.Index.Backend)
	}
	if c.Nutrients.MatchThreshold < 0 || c.Nutrients.MatchThreshold > 1 {
		return fmt.Errorf("nutrients.match_threshold: %g is outside [0, 1]", c.Nutrients.MatchThreshold)
	}
	for name, d := range map[string]string{
		"embedding.pause":    c.Embedding.Pause,
		"embedding.backoff":  c.Embedding.Backoff,
		"generation.timeout": c.Generation.Timeout,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Address is the listen address of the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PauseDuration is the wait between embedding batches.
func (e EmbeddingConfig) PauseDuration() time.Duration {
	return mustDuration(e.Pause, 4*time.Second)
}

// BackoffDuration is the wait before a failed batch is retried.
func (e EmbeddingConfig) BackoffDuration() time.Duration {
	return mustDuration(e.Backoff, 10*time.Second)
}

func (g GenerationConfig) TimeoutDuration() time.Duration {
	return mustDuration(g.Timeout, 2*time.Minute)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
