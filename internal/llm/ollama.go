package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"budget-rag/internal/models"
)

// OllamaLLM handles interactions with the Ollama chat API
type OllamaLLM struct {
	Client *api.Client
	Model  string
}

// NewOllamaLLM creates a new Ollama LLM client. An empty host falls back
// to OLLAMA_HOST.
func NewOllamaLLM(host string, model string) (*OllamaLLM, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}

	return &OllamaLLM{
		Client: api.NewClient(hostURL, http.DefaultClient),
		Model:  model,
	}, nil
}

// Name returns the provider name
func (o *OllamaLLM) Name() string { return "ollama" }

// Generate generates a response from the LLM
func (o *OllamaLLM) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]api.Message, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	for _, turn := range req.History {
		messages = append(messages, api.Message{Role: string(turn.Role), Content: turn.Text})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	options := map[string]interface{}{}
	if req.Params.Temperature > 0 {
		options["temperature"] = req.Params.Temperature
	}
	if req.Params.TopP > 0 {
		options["top_p"] = req.Params.TopP
	}
	if req.Params.TopK > 0 {
		options["top_k"] = req.Params.TopK
	}
	if req.Params.MaxOutputTokens > 0 {
		options["num_predict"] = req.Params.MaxOutputTokens
	}

	stream := false
	chatReq := api.ChatRequest{
		Model:    o.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var responseBuilder strings.Builder
	var doneReason string

	err := o.Client.Chat(ctx, &chatReq, func(resp api.ChatResponse) error {
		if resp.Done {
			doneReason = resp.DoneReason
		}
		_, err := responseBuilder.WriteString(resp.Message.Content)
		return err
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return Response{}, statusError(o.Name(), statusErr.StatusCode, statusErr.ErrorMessage, 0)
		}
		return Response{}, fmt.Errorf("failed to generate response: %w", err)
	}

	if strings.TrimSpace(responseBuilder.String()) == "" {
		return Response{}, &models.GenerationError{Provider: o.Name(), Message: "empty response text"}
	}

	return Response{
		Text:         responseBuilder.String(),
		Model:        o.Model,
		FinishReason: doneReason,
	}, nil
}
