package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"budget-rag/internal/models"
)

// OpenAIConfig configures the OpenAI chat provider
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIProvider generates answers with the chat completions API
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI chat provider. The SDK's own retries
// are disabled so attempts are counted in one place.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate sends the conversation to the chat completions endpoint
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, turn := range req.History {
		if turn.Role == models.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Text))
			continue
		}
		messages = append(messages, openai.UserMessage(turn.Text))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	if req.Params.Temperature > 0 {
		params.Temperature = openai.Float(req.Params.Temperature)
	}
	if req.Params.TopP > 0 {
		params.TopP = openai.Float(req.Params.TopP)
	}
	if req.Params.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Params.MaxOutputTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			var retryAfter time.Duration
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header)
			}
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.StatusCode)
			}
			return Response{}, statusError(p.Name(), apiErr.StatusCode, msg, retryAfter)
		}
		return Response{}, fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return Response{}, &models.GenerationError{Provider: p.Name(), Status: http.StatusOK, Message: "response has no choices"}
	}

	choice := completion.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return Response{}, &models.GenerationError{
			Provider: p.Name(),
			Status:   http.StatusOK,
			Message:  fmt.Sprintf("choice has no content (finish reason %s)", choice.FinishReason),
		}
	}

	return Response{
		Text:         choice.Message.Content,
		Model:        completion.Model,
		FinishReason: string(choice.FinishReason),
	}, nil
}
