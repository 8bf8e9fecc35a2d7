package llm

import (
	"context"
	"strings"

	"github.com/spherical/slide-creator/internal/config"
	"github.com/spherical/slide-creator/internal/domain"
)

// NewCompleter builds the text completer selected by cfg.Provider
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (domain.TextCompleter, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError("missing API key for llm provider "+cfg.Provider, nil)
	}

	switch cfg.Provider {
	case "openrouter", "":
		return NewClient(cfg.APIKey, cfg.Model,
			WithBaseURL(cfg.BaseURL),
			WithTimeout(cfg.Timeout),
			WithSampling(cfg.Temperature, cfg.MaxTokens),
			WithAppInfo(cfg.Referer, cfg.AppTitle),
		), nil
	case "openai":
		return NewOpenAI(cfg.APIKey, strings.TrimPrefix(cfg.Model, "openai/"), ""), nil
	case "gemini":
		model := cfg.Model
		if strings.Contains(model, "/") {
			model = defaultGeminiModel
		}
		return NewGemini(ctx, cfg.APIKey, model)
	default:
		return nil, domain.ConfigError("unknown llm provider "+cfg.Provider, nil)
	}
}

// NewImageGenerator builds the image generator selected by cfg.Provider.
// It returns nil without error when image generation is disabled.
func NewImageGenerator(cfg config.ImageConfig) (domain.ImageGenerator, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, domain.ConfigError("missing API key for image provider openai", nil)
		}
		return NewOpenAI(cfg.APIKey, "", "").WithImageSettings(cfg.Model, cfg.Size), nil
	default:
		return nil, domain.ConfigError("unknown image provider "+cfg.Provider, nil)
	}
}
