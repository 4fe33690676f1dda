// Package config loads the assistant configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"budget-rag/internal/models"
)

// LLM providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	// ProviderHashing is the local embedder that needs no external service
	ProviderHashing = "hashing"
)

// Config holds the assistant configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig selects and tunes the answer generation provider.
// Zero sampling values mean "use the provider default".
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini, openai, ollama
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	SystemPrompt    string  `yaml:"system_prompt"`
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	TopK            int     `yaml:"top_k"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	TimeoutSec      int     `yaml:"timeout_sec"`
	Attempts        int     `yaml:"attempts"`
}

// EmbeddingConfig selects the embedding provider used in retrieval mode.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"` // hashing, openai, ollama
	Model         string `yaml:"model"`
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Dimensions    int    `yaml:"dimensions"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	Attempts      int    `yaml:"attempts"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// ChunkingConfig holds chunker settings in characters. An absent overlap
// defaults to a fifth of the size; an explicit 0 disables overlap.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`

	overlapSet bool
}

// UnmarshalYAML records whether overlap was given
func (c *ChunkingConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Size    int  `yaml:"size"`
		Overlap *int `yaml:"overlap"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.Size = raw.Size
	c.Overlap, c.overlapSet = 0, raw.Overlap != nil
	if raw.Overlap != nil {
		c.Overlap = *raw.Overlap
	}
	return nil
}

// RetrievalConfig holds answering defaults.
type RetrievalConfig struct {
	Mode            string `yaml:"mode"` // retrieval, whole
	TopK            int    `yaml:"top_k"`
	MaxContextChars int    `yaml:"max_context_chars"`
	MaxHistoryTurns int    `yaml:"max_history_turns"`
}

// CorpusConfig describes the directory preloaded at startup.
type CorpusConfig struct {
	Dir           string `yaml:"dir"`
	Watch         bool   `yaml:"watch"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// DatabaseConfig enables the PostgreSQL vector store when URL is set.
type DatabaseConfig struct {
	URL        string `yaml:"url"`
	Dimensions int    `yaml:"dimensions"`
}

// CacheConfig enables the Redis embedding cache when Addrs is set.
type CacheConfig struct {
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	KeyPrefix string   `yaml:"key_prefix"`
	TTLSec    int      `yaml:"ttl_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // used by the terminal chat
}

// Load reads configuration from config/<env>.yaml
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from a YAML file. Values of the form ${VAR}
// and ${VAR:-default} are replaced with environment variables.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes, completes and validates a YAML configuration
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration built from defaults and environment variables only
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	c.LLM.applyDefaults()
	c.Embedding.applyDefaults()

	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
	}
	if !c.Chunking.overlapSet && c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = c.Chunking.Size / 5
	}
	if c.Retrieval.Mode == "" {
		c.Retrieval.Mode = string(models.ModeRetrieval)
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 4
	}
	if c.Retrieval.MaxContextChars <= 0 {
		c.Retrieval.MaxContextChars = 24000
	}
	if c.Retrieval.MaxHistoryTurns <= 0 {
		c.Retrieval.MaxHistoryTurns = 10
	}
	if c.Corpus.MaxConcurrent <= 0 {
		c.Corpus.MaxConcurrent = max(runtime.NumCPU()/2, 1)
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 180
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 64 << 20
	}
	if c.Database.Dimensions <= 0 {
		c.Database.Dimensions = c.Embedding.Dimensions
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "budget-rag:emb:"
	}
	if c.Logging.File == "" {
		c.Logging.File = "budgetqa.log"
	}
}

func (l *LLMConfig) applyDefaults() {
	if l.Provider == "" {
		l.Provider = ProviderGemini
	}
	if l.TimeoutSec <= 0 {
		l.TimeoutSec = 60
	}
	if l.Attempts <= 0 {
		l.Attempts = 2
	}

	switch l.Provider {
	case ProviderGemini:
		if l.APIKey == "" {
			l.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
		if l.Model == "" {
			l.Model = "gemini-2.0-flash"
		}
		if l.Temperature == 0 {
			l.Temperature = 0.7
		}
		if l.TopP == 0 {
			l.TopP = 0.8
		}
		if l.TopK == 0 {
			l.TopK = 40
		}
		if l.MaxOutputTokens == 0 {
			l.MaxOutputTokens = 2048
		}
	case ProviderOpenAI:
		if l.APIKey == "" {
			l.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if l.Model == "" {
			l.Model = "gpt-4"
		}
		if l.Temperature == 0 {
			l.Temperature = 0.7
		}
		if l.MaxOutputTokens == 0 {
			l.MaxOutputTokens = 500
		}
	case ProviderOllama:
		if l.Model == "" {
			l.Model = "llama3.1"
		}
		if l.Temperature == 0 {
			l.Temperature = 0.1
		}
		if l.MaxOutputTokens == 0 {
			l.MaxOutputTokens = 1024
		}
	}
}

func (e *EmbeddingConfig) applyDefaults() {
	if e.Provider == "" {
		e.Provider = ProviderHashing
	}
	if e.TimeoutSec <= 0 {
		e.TimeoutSec = 30
	}
	if e.Attempts <= 0 {
		e.Attempts = 2
	}
	if e.MaxConcurrent <= 0 {
		e.MaxConcurrent = 4
	}

	switch e.Provider {
	case ProviderHashing:
		if e.Dimensions <= 0 {
			e.Dimensions = 512
		}
	case ProviderOpenAI:
		if e.APIKey == "" {
			e.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if e.Model == "" {
			e.Model = "text-embedding-3-small"
		}
		if e.Dimensions <= 0 {
			e.Dimensions = 1536
		}
	case ProviderOllama:
		if e.Model == "" {
			e.Model = "nomic-embed-text"
		}
		if e.Dimensions <= 0 {
			e.Dimensions = 768
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderOllama:
	default:
		return &models.ConfigurationError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}
	switch c.Embedding.Provider {
	case ProviderHashing, ProviderOpenAI, ProviderOllama:
	default:
		return &models.ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unsupported provider %q", c.Embedding.Provider)}
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap*2 >= c.Chunking.Size {
		return &models.ConfigurationError{
			Field:  "chunking.overlap",
			Reason: fmt.Sprintf("overlap %d must be less than half of size %d", c.Chunking.Overlap, c.Chunking.Size),
		}
	}
	if !models.Mode(c.Retrieval.Mode).Valid() {
		return &models.ConfigurationError{Field: "retrieval.mode", Reason: fmt.Sprintf("must be %q or %q, got %q", models.ModeRetrieval, models.ModeWhole, c.Retrieval.Mode)}
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return &models.ConfigurationError{Field: "http.port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", c.HTTP.Port)}
	}
	if c.Database.URL != "" && c.Database.Dimensions != c.Embedding.Dimensions {
		return &models.ConfigurationError{
			Field:  "database.dimensions",
			Reason: fmt.Sprintf("%d does not match embedding.dimensions %d", c.Database.Dimensions, c.Embedding.Dimensions),
		}
	}
	return nil
}

// RequireCredentials reports missing API keys for the selected providers.
// It is separate from Validate so that offline commands can run without keys.
func (c *Config) RequireCredentials() error {
	switch {
	case c.LLM.Provider == ProviderGemini && c.LLM.APIKey == "":
		return &models.ConfigurationError{Field: "llm.api_key", Reason: "GOOGLE_API_KEY is not set"}
	case c.LLM.Provider == ProviderOpenAI && c.LLM.APIKey == "":
		return &models.ConfigurationError{Field: "llm.api_key", Reason: "OPENAI_API_KEY is not set"}
	case c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "":
		return &models.ConfigurationError{Field: "embedding.api_key", Reason: "OPENAI_API_KEY is not set"}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests and `go run` from subdirectories
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b)))
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
