//go:build bedrock

package main

import (
	"log/slog"

	"switchboard-ai/internal/adapter/llm"
	"switchboard-ai/internal/domain"
	"switchboard-ai/internal/infra/config"
)

func createBedrockProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(pc, log)
}
