package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"budget-rag/internal/models"
)

// GeminiConfig configures the Gemini provider. An empty BaseURL uses the
// Generative Language API endpoint.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GeminiProvider generates answers with the Gemini API
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini provider. Timeouts come from the
// request context.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

// Name returns the provider name
func (g *GeminiProvider) Name() string { return "gemini" }

// Generate sends the conversation and prompt to Gemini
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, generationConfig(req))
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Response{}, statusError(g.Name(), apiErr.Code, apiErr.Message, 0)
		}
		return Response{}, &models.GenerationError{Provider: g.Name(), Message: "request failed", Err: err}
	}

	return g.parseResponse(resp)
}

func generationConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	p := req.Params
	if p.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(p.Temperature))
	}
	if p.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(p.TopP))
	}
	if p.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(p.TopK))
	}
	if p.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxOutputTokens)
	}
	return cfg
}

func (g *GeminiProvider) parseResponse(resp *genai.GenerateContentResponse) (Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		msg := "response has no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg += ", prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return Response{}, &models.GenerationError{Provider: g.Name(), Status: http.StatusOK, Message: msg}
	}

	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 {
		var reason genai.FinishReason
		if cand != nil {
			reason = cand.FinishReason
		}
		return Response{}, &models.GenerationError{
			Provider: g.Name(),
			Status:   http.StatusOK,
			Message:  fmt.Sprintf("candidate has no content (finish reason %s)", reason),
		}
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return Response{}, &models.GenerationError{Provider: g.Name(), Status: http.StatusOK, Message: "candidate has no text"}
	}

	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	return Response{Text: b.String(), Model: model, FinishReason: string(cand.FinishReason)}, nil
}
