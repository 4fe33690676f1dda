package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"budget-rag/internal/models"
	"budget-rag/internal/retry"
)

// OpenAIConfig holds the settings of an OpenAI-compatible embedding endpoint
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API or
// any compatible endpoint
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedder
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
}

// Name returns the provider and model
func (e *OpenAIEmbedder) Name() string { return "openai/" + string(e.model) }

// Embed generates an embedding for a text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, &models.EmbeddingError{Provider: "openai", Err: parseAPIError(err)}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &models.EmbeddingError{Provider: "openai", Err: errors.New("empty embedding response")}
	}

	return resp.Data[0].Embedding, nil
}

// parseAPIError extracts a readable message from the API response and marks
// rate limits and server errors as retryable
func parseAPIError(err error) error {
	var (
		status int
		msg    string
	)

	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status, msg = reqErr.HTTPStatusCode, extractDetail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
	default:
		return err
	}

	parsed := fmt.Errorf("embedding API error %d: %s", status, msg)
	if status == http.StatusTooManyRequests || status >= 500 {
		return retry.Retryable(parsed, 0)
	}
	return parsed
}

// extractDetail reads the "detail" field some compatible servers use for errors
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}
