package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-rag/internal/models"
	"budget-rag/internal/retry"
)

func testRequest() Request {
	return Request{
		System: DefaultSystemPrompt,
		History: []models.Turn{
			{Role: models.RoleUser, Text: "What is the capex outlay?"},
			{Role: models.RoleAssistant, Text: "₹11.21 lakh crore."},
		},
		Prompt: "What is the fiscal deficit target?",
		Params: Params{Temperature: 0.7, TopP: 0.8, TopK: 40, MaxOutputTokens: 2048},
	}
}

// geminiWireRequest is the part of a generateContent body the tests inspect
type geminiWireRequest struct {
	SystemInstruction *struct {
		Parts []struct{ Text string }
	}
	Contents []struct {
		Role  string
		Parts []struct{ Text string }
	}
	GenerationConfig struct {
		TopK            float64
		MaxOutputTokens int
	}
}

func newGemini(t *testing.T, url string) *GeminiProvider {
	t.Helper()
	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: url, Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	return p
}

func TestGeminiProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body geminiWireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, DefaultSystemPrompt, body.SystemInstruction.Parts[0].Text)
		require.Len(t, body.Contents, 3)
		assert.Equal(t, "user", body.Contents[0].Role)
		assert.Equal(t, "model", body.Contents[1].Role)
		assert.Equal(t, "What is the fiscal deficit target?", body.Contents[2].Parts[0].Text)
		assert.Equal(t, 40.0, body.GenerationConfig.TopK)
		assert.Equal(t, 2048, body.GenerationConfig.MaxOutputTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"The target is "},{"text":"4.9% of GDP."}]},
			"finishReason":"STOP"}],"modelVersion":"gemini-2.0-flash-001"}`))
	}))
	defer server.Close()

	resp, err := newGemini(t, server.URL).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "The target is 4.9% of GDP.", resp.Text)
	assert.Equal(t, "gemini-2.0-flash-001", resp.Model)
	assert.Equal(t, "STOP", resp.FinishReason)
}

func TestGeminiProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		message   string
		// wantStatus is the status recorded on the error
		wantStatus int
	}{
		{name: "rate limited", status: 429, body: `{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED"}}`, transient: true, message: "Resource exhausted", wantStatus: 429},
		{name: "server error", status: 503, body: `{"error":{"code":503,"message":"The model is overloaded","status":"UNAVAILABLE"}}`, transient: true, message: "overloaded", wantStatus: 503},
		{name: "bad key", status: 400, body: `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, message: "API key not valid", wantStatus: 400},
		{name: "no candidates", status: 200, body: `{"candidates":[]}`, message: "no candidates", wantStatus: 200},
		{name: "blocked prompt", status: 200, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, message: "SAFETY", wantStatus: 200},
		{name: "no parts", status: 200, body: `{"candidates":[{"finishReason":"MAX_TOKENS"}]}`, message: "MAX_TOKENS", wantStatus: 200},
		{name: "missing text", status: 200, body: `{"candidates":[{"content":{"parts":[{}]}}]}`, message: "no text", wantStatus: 200},
		{name: "malformed", status: 200, body: `{"candidates":`, message: "request failed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := newGemini(t, server.URL).Generate(context.Background(), testRequest())
			require.Error(t, err)

			var genErr *models.GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, "gemini", genErr.Provider)
			assert.Equal(t, tc.wantStatus, genErr.Status)
			assert.Contains(t, err.Error(), tc.message)
			assert.Equal(t, tc.transient, retry.IsTransient(err))
		})
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model     string  `json:"model"`
			MaxTokens int     `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4", body.Model)
		assert.Equal(t, 500, body.MaxTokens)
		require.Len(t, body.Messages, 4)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "assistant", body.Messages[2].Role)
		assert.Equal(t, "user", body.Messages[3].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4-0613",
			"choices":[{"index":0,"message":{"role":"assistant","content":"4.9% of GDP."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	req := testRequest()
	req.Params = Params{Temperature: 0.7, MaxOutputTokens: 500}

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4"})
	resp, err := p.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "4.9% of GDP.", resp.Text)
	assert.Equal(t, "gpt-4-0613", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{name: "rate limited", status: 429, body: `{"error":{"message":"Rate limit reached","type":"requests"}}`, transient: true},
		{name: "server error", status: 502, body: `{"error":{"message":"bad gateway","type":"server_error"}}`, transient: true},
		{name: "unauthorized", status: 401, body: `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`},
		{name: "no choices", status: 200, body: `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4","choices":[]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL, Model: "gpt-4"})
			_, err := p.Generate(context.Background(), testRequest())
			require.Error(t, err)

			var genErr *models.GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, "openai", genErr.Provider)
			assert.Equal(t, tc.status, genErr.Status)
			assert.Equal(t, tc.transient, retry.IsTransient(err))
		})
	}
}

func TestOllamaLLM_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body struct {
			Model    string           `json:"model"`
			Messages []map[string]any `json:"messages"`
			Options  map[string]any   `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.1", body.Model)
		require.Len(t, body.Messages, 4)
		assert.Equal(t, "system", body.Messages[0]["role"])
		assert.EqualValues(t, 2048, body.Options["num_predict"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"4.9% of GDP."},"done":true,"done_reason":"stop"}` + "\n"))
	}))
	defer server.Close()

	o, err := NewOllamaLLM(server.URL, "llama3.1")
	require.NoError(t, err)
	assert.Equal(t, "ollama", o.Name())

	resp, err := o.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "4.9% of GDP.", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOllamaLLM_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"server busy"}`))
	}))
	defer server.Close()

	o, err := NewOllamaLLM(server.URL, "llama3.1")
	require.NoError(t, err)

	_, err = o.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGeneration)
	assert.True(t, retry.IsTransient(err))
	assert.Contains(t, err.Error(), "server busy")
}
