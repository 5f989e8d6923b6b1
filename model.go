package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/JoshPattman/resumestudio/agents"
)

// buildAgents creates the LLM roles for the configured provider.
func buildAgents(ctx context.Context, cfg Config, logger *slog.Logger) (agents.Agents, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.Secrets.GeminiKey == "" {
			return agents.Agents{}, errors.New("GEMINI_API_KEY is not set")
		}
		client, err := agents.NewGeminiClient(ctx, cfg.Secrets.GeminiKey)
		if err != nil {
			return agents.Agents{}, errors.Join(errors.New("failed to create gemini client"), err)
		}
		logger.Info("Using Gemini", "model", cfg.Model)
		return agents.NewGeminiAgents(client.Models, cfg.Model, cfg.Temperature, logger), nil
	default:
		if cfg.Secrets.OpenAIKey == "" {
			return agents.Agents{}, errors.New("OPENAI_API_KEY is not set")
		}
		modelBuilder, err := agents.NewModelBuilder(cfg.Secrets.OpenAIKey, cfg.Model, cfg.Temperature, cfg.MaxConcurrency, cfg.CachePath)
		if err != nil {
			return agents.Agents{}, errors.Join(errors.New("failed to create model builder"), err)
		}
		logger.Info("Using OpenAI", "model", cfg.Model, "cache", cfg.CachePath)
		return agents.NewOpenAIAgents(modelBuilder, logger), nil
	}
}
