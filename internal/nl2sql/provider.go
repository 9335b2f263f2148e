package nl2sql

import (
	"context"
	"fmt"

	"github.com/queryai/queryai/internal/config"
)

// NewFromConfig builds the generator for the configured provider.
func NewFromConfig(ctx context.Context, cfg config.AIConfig) (*PromptGenerator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAIGenerator(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
