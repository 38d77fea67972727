// Package grok implements the xAI Grok adapter via the OpenAI-compatible API.
package grok

import (
	"github.com/amul-dhungel/Deepwork/providers"
	"github.com/amul-dhungel/Deepwork/providers/openai"
	"go.uber.org/zap"
)

// Provider implements the xAI Grok adapter.
type Provider struct {
	*openai.Provider
}

// New creates a Grok provider.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	return &Provider{
		Provider: openai.NewCompatible("grok", "grok-beta", "https://api.x.ai/v1", cfg, logger),
	}
}
