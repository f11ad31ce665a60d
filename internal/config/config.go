package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ImageTagger server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Tagging   TaggingConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         int
	Env          string
	LogFile      string
	APITokenHash string // bcrypt hash; empty disables auth
}

type DatabaseConfig struct {
	URL             string // empty disables run persistence
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string // empty falls back to the in-memory result cache
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Anthropic        AnthropicConfig
	Ollama           OllamaConfig
	OpenAI           OpenAIConfig
}

// DefaultModel returns the configured model name for the active provider.
func (c AIConfig) DefaultModel() string {
	switch c.Provider {
	case "anthropic":
		return c.Anthropic.Model
	case "ollama":
		return c.Ollama.Model
	case "openai":
		return c.OpenAI.Model
	default:
		return ""
	}
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// TaggingConfig is the configuration surface consumed by the batch engine.
// It is immutable for the duration of a run.
type TaggingConfig struct {
	MaxWorkers    int
	BatchSize     int
	TagCount      int
	Authors       string
	ClearMetadata bool
	CacheTTL      time.Duration
}

type RateLimitConfig struct {
	MaxCalls int
	Window   time.Duration
}

const (
	MinBatchSize = 1
	MaxBatchSize = 20
)

var validProviders = map[string]bool{
	"anthropic": true,
	"ollama":    true,
	"openai":    true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         envInt("TAGGER_PORT", 8080),
			Env:          envString("TAGGER_ENV", "development"),
			LogFile:      os.Getenv("TAGGER_LOG_FILE"),
			APITokenHash: os.Getenv("TAGGER_API_TOKEN_HASH"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "anthropic"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Model:   envString("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llava"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
			},
		},
		Tagging: TaggingConfig{
			MaxWorkers:    envInt("TAGGER_MAX_WORKERS", 10),
			BatchSize:     envInt("TAGGER_BATCH_SIZE", 1),
			TagCount:      envInt("TAGGER_TAG_COUNT", 49),
			Authors:       os.Getenv("TAGGER_AUTHORS"),
			ClearMetadata: envBool("TAGGER_CLEAR_METADATA", false),
			CacheTTL:      envDuration("TAGGER_CACHE_TTL", 30*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			MaxCalls: envInt("TAGGER_RATE_LIMIT_CALLS", 50),
			Window:   envDurationSecs("TAGGER_RATE_LIMIT_WINDOW_SECS", 60*time.Second),
		},
	}

	// An Anthropic key file mirrors the original api_key.txt workflow and is
	// only consulted when the env var is unset.
	if cfg.AI.Anthropic.APIKey == "" {
		keyFile := envString("ANTHROPIC_API_KEY_FILE", "api_key.txt")
		if data, err := os.ReadFile(keyFile); err == nil {
			cfg.AI.Anthropic.APIKey = strings.TrimSpace(string(data))
		}
	}

	cfg.clamp()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// clamp coerces out-of-range tagging values into their valid ranges with a
// logged warning rather than rejecting them.
func (c *Config) clamp() {
	c.Tagging.BatchSize = ClampBatchSize(c.Tagging.BatchSize)
	if c.Tagging.MaxWorkers < 1 {
		slog.Warn("max workers out of range, clamping",
			"got", c.Tagging.MaxWorkers, "using", 1)
		c.Tagging.MaxWorkers = 1
	}
	if c.Tagging.TagCount < 1 {
		slog.Warn("tag count out of range, clamping",
			"got", c.Tagging.TagCount, "using", 1)
		c.Tagging.TagCount = 1
	}
}

// ClampBatchSize coerces n into [MinBatchSize, MaxBatchSize], logging a
// warning when it had to.
func ClampBatchSize(n int) int {
	switch {
	case n < MinBatchSize:
		slog.Warn("batch size out of range, clamping", "got", n, "using", MinBatchSize)
		return MinBatchSize
	case n > MaxBatchSize:
		slog.Warn("batch size out of range, clamping", "got", n, "using", MaxBatchSize)
		return MaxBatchSize
	default:
		return n
	}
}

func (c *Config) validate() error {
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of anthropic, ollama, openai, mock; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic (set the env var or provide an api_key.txt file)")
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}

	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "postgres://") &&
		!strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must be a postgres:// URL, got %q", c.Database.URL)
	}

	if c.RateLimit.MaxCalls < 1 {
		return fmt.Errorf("TAGGER_RATE_LIMIT_CALLS must be positive, got %d", c.RateLimit.MaxCalls)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("TAGGER_RATE_LIMIT_WINDOW_SECS must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
