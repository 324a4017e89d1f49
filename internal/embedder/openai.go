package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/54b3r/pdfqa/internal/rag"
)

// OpenAIEmbedder implements rag.Embedder against the OpenAI embeddings API
// or an Azure OpenAI deployment. Any OpenAI-compatible endpoint works,
// including Ollama's /v1.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	backend    string
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API root (e.g. "https://api.openai.com/v1") or, for
	// Azure, the resource endpoint.
	BaseURL string
	// APIKey is sent as a bearer token (OpenAI) or api-key header (Azure).
	APIKey string
	// Model is the embedding model, or the deployment name on Azure.
	Model string
	// Dimensions requests a reduced output size. 0 keeps the model default.
	Dimensions int
	// Azure selects Azure OpenAI authentication and URL layout.
	Azure bool
	// APIVersion is the Azure API version.
	APIVersion string
	// Timeout bounds one request (default 60s).
	Timeout time.Duration
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var (
		clientCfg openai.ClientConfig
		backend   = "openai"
	)
	if cfg.Azure {
		backend = "azure"
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.BaseURL, "/"))
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		backend:    backend,
	}
}

// Embed requests embeddings for all texts in one call and returns them in
// input order, using the response's index field to place each vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, e.apiError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s embedder: expected %d embeddings, got %d: %w", e.backend, len(texts), len(resp.Data), rag.ErrEmbedding)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("%s embedder: bad embedding index %d: %w", e.backend, d.Index, rag.ErrEmbedding)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// apiError maps go-openai errors onto StatusError so retry can tell
// transient failures from permanent ones.
func (e *OpenAIEmbedder) apiError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Backend: e.backend, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{Backend: e.backend, StatusCode: reqErr.HTTPStatusCode, Message: string(reqErr.Body)}
	}
	return fmt.Errorf("%s embedder: request failed: %w: %w", e.backend, rag.ErrEmbedding, err)
}
