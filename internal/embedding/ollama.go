package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"budget-rag/internal/models"
	"budget-rag/internal/retry"
)

// OllamaEmbedder generates embeddings using the Ollama API
type OllamaEmbedder struct {
	Client *api.Client
	Model  string
}

// NewOllamaEmbedder creates a new Ollama embedder. An empty host falls back
// to OLLAMA_HOST.
func NewOllamaEmbedder(host, model string) (*OllamaEmbedder, error) {
	hostURL, err := ollamaHost(host)
	if err != nil {
		return nil, err
	}

	return &OllamaEmbedder{
		Client: api.NewClient(hostURL, http.DefaultClient),
		Model:  model,
	}, nil
}

func ollamaHost(host string) (*url.URL, error) {
	if host == "" {
		return envconfig.Host(), nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return u, nil
}

// Name returns the provider and model
func (e *OllamaEmbedder) Name() string { return "ollama/" + e.Model }

// Embed generates an embedding for a text
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := api.EmbeddingRequest{
		Model:  e.Model,
		Prompt: text,
	}

	resp, err := e.Client.Embeddings(ctx, &req)
	if err != nil {
		return nil, &models.EmbeddingError{Provider: "ollama", Err: classifyOllamaError(err)}
	}
	if len(resp.Embedding) == 0 {
		return nil, &models.EmbeddingError{Provider: "ollama", Err: errors.New("empty embedding in response")}
	}

	return toFloat32(resp.Embedding), nil
}

// classifyOllamaError marks overload and server errors as retryable
func classifyOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return retry.Retryable(err, 0)
		}
	}
	return err
}
