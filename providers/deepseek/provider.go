// Package deepseek implements the DeepSeek adapter via the OpenAI-compatible API.
package deepseek

import (
	"github.com/amul-dhungel/Deepwork/providers"
	"github.com/amul-dhungel/Deepwork/providers/openai"
	"go.uber.org/zap"
)

// Provider implements the DeepSeek adapter.
type Provider struct {
	*openai.Provider
}

// New creates a DeepSeek provider.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	return &Provider{
		Provider: openai.NewCompatible("deepseek", "deepseek-chat", "https://api.deepseek.com", cfg, logger),
	}
}
