// Package embedder provides the rag.Embedder backends used to turn document
// chunks and questions into dense vectors.
package embedder

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/pdfqa/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	// defaultMaxRetries is the number of retries after the first failed call.
	defaultMaxRetries = 2

	// defaultTimeout bounds a single embedding HTTP round trip.
	defaultTimeout = 60 * time.Second
)

// Config describes a resolved embedding backend.
type Config struct {
	// Backend is one of "ollama", "openai" or "azure".
	Backend string

	// Model is the embedding model (or Azure deployment) name.
	Model string

	// APIKey authenticates against openai/azure. Unused by ollama.
	APIKey string

	// Endpoint is the service base URL.
	Endpoint string

	// APIVersion is the Azure OpenAI API version.
	APIVersion string

	// Dimensions requests a specific output size from backends that support
	// it. 0 means the model default.
	Dimensions int

	// MaxRetries bounds retries after a failed call. 0 disables retry.
	MaxRetries int

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
}

// VectorSize returns the expected output dimension: Dimensions when set,
// otherwise the default for the backend's default model.
func (c *Config) VectorSize() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	return DefaultDimensions(c.Backend)
}

// DefaultDimensions returns the default embedding vector size for the given
// backend name. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ConfigFromEnv resolves the embedding backend from the environment,
// inheriting the chat provider's settings where no embedding-specific
// override is set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER when it is an embedding-capable backend, else ollama
//  2. EMBEDDING_MODEL overrides the backend's default model
//  3. EMBEDDING_API_KEY overrides the inherited API key
//  4. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  5. EMBEDDING_DIMENSIONS and EMBEDDING_MAX_RETRIES
func ConfigFromEnv() (*Config, error) {
	backend := os.Getenv("EMBEDDING_PROVIDER")
	if backend == "" {
		switch p := os.Getenv("MODEL_PROVIDER"); p {
		case "openai", "azure":
			backend = p
		default:
			backend = "ollama"
		}
	}

	cfg := &Config{
		Backend:    backend,
		Model:      os.Getenv("EMBEDDING_MODEL"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		MaxRetries: getEnvInt("EMBEDDING_MAX_RETRIES", defaultMaxRetries),
		Timeout:    defaultTimeout,
	}

	switch backend {
	case "ollama":
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}

	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}

	case "azure":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-10-21")
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure", backend)
	}
	return cfg, nil
}

// New constructs the backend described by cfg wrapped with bounded retry.
func New(cfg *Config) (rag.Embedder, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var base rag.Embedder
	switch cfg.Backend {
	case "ollama":
		base = NewOllamaEmbedder(&OllamaConfig{
			Host:    cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	case "openai", "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: %s requires an API key (EMBEDDING_API_KEY)", cfg.Backend)
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: %s requires an endpoint (EMBEDDING_ENDPOINT)", cfg.Backend)
		}
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      cfg.Backend == "azure",
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q", cfg.Backend)
	}

	return WithRetry(base, cfg.MaxRetries), nil
}

// NewFromEnv is ConfigFromEnv followed by New.
func NewFromEnv() (rag.Embedder, *Config, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	emb, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return emb, cfg, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
