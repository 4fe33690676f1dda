package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-rag/internal/models"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := Parse([]byte("llm:\n  provider: gemini\n"))
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.InDelta(t, 0.8, cfg.LLM.TopP, 1e-9)
	assert.Equal(t, 40, cfg.LLM.TopK)
	assert.Equal(t, 2048, cfg.LLM.MaxOutputTokens)
	assert.Equal(t, 2, cfg.LLM.Attempts)

	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, ProviderHashing, cfg.Embedding.Provider)
	assert.Equal(t, "retrieval", cfg.Retrieval.Mode)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, cfg.Embedding.Dimensions, cfg.Database.Dimensions)
}

func TestParse_OpenAIDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Parse([]byte("llm:\n  provider: openai\nembedding:\n  provider: openai\n"))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4", cfg.LLM.Model)
	assert.Equal(t, 500, cfg.LLM.MaxOutputTokens)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_CORPUS", "/srv/budget")

	data := []byte(`
corpus:
  dir: ${TEST_CORPUS}
http:
  port: ${TEST_PORT_UNSET:-9090}
chunking:
  size: 500
  overlap: 50
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "/srv/budget", cfg.Corpus.Dir)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
}

func TestParse_ChunkOverlap(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		size    int
		overlap int
	}{
		{name: "absent", yaml: "chunking:\n  size: 1000\n", size: 1000, overlap: 200},
		{name: "absent with custom size", yaml: "chunking:\n  size: 600\n", size: 600, overlap: 120},
		{name: "explicit zero", yaml: "chunking:\n  size: 1000\n  overlap: 0\n", size: 1000, overlap: 0},
		{name: "explicit zero with default size", yaml: "chunking:\n  overlap: 0\n", size: 1000, overlap: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.yaml))
			require.NoError(t, err)
			assert.Equal(t, tc.size, cfg.Chunking.Size)
			assert.Equal(t, tc.overlap, cfg.Chunking.Overlap)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "unknown llm provider", yaml: "llm:\n  provider: claude-ish\n", field: "llm.provider"},
		{name: "unknown embedder", yaml: "embedding:\n  provider: word2vec\n", field: "embedding.provider"},
		{name: "overlap too large", yaml: "chunking:\n  size: 100\n  overlap: 60\n", field: "chunking.overlap"},
		{name: "bad mode", yaml: "retrieval:\n  mode: hybrid\n", field: "retrieval.mode"},
		{name: "bad port", yaml: "http:\n  port: 70000\n", field: "http.port"},
		{
			name:  "vector dimensions mismatch",
			yaml:  "database:\n  url: postgres://localhost/db\n  dimensions: 384\nembedding:\n  dimensions: 512\n",
			field: "database.dimensions",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfiguration)

			var cfgErr *models.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := Default()
	err := cfg.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")

	cfg.LLM.APIKey = "g-key"
	assert.NoError(t, cfg.RequireCredentials())

	ollama, err := Parse([]byte("llm:\n  provider: ollama\n"))
	require.NoError(t, err)
	assert.NoError(t, ollama.RequireCredentials(), "local providers need no keys")
}

func TestLoad_LocalFile(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")

	cfg, err := Load("local")
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Contains(t, cfg.LLM.SystemPrompt, "2025 budget")

	_, err = Load("does-not-exist")
	assert.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	assert.Equal(t, "local", GetEnv())
	t.Setenv("ENV", "prod")
	assert.Equal(t, "prod", GetEnv())
}
