package vision

import (
	"fmt"

	"github.com/kiranshivaraju/imagetagger/internal/config"
	"github.com/kiranshivaraju/imagetagger/internal/vision/anthropic"
	"github.com/kiranshivaraju/imagetagger/internal/vision/mock"
	"github.com/kiranshivaraju/imagetagger/internal/vision/ollama"
	"github.com/kiranshivaraju/imagetagger/internal/vision/openai"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// NewProvider constructs the appropriate vision provider based on config.
// Called once at server startup; the provider is injected everywhere else.
func NewProvider(cfg config.AIConfig) (models.VisionProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q: must be one of anthropic, ollama, openai, mock", cfg.Provider)
	}
}
