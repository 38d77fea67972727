// Package llama implements the Meta Llama adapter via Groq's
// OpenAI-compatible API.
package llama

import (
	"github.com/amul-dhungel/Deepwork/providers"
	"github.com/amul-dhungel/Deepwork/providers/openai"
	"go.uber.org/zap"
)

// Provider implements the Groq-hosted Llama adapter.
type Provider struct {
	*openai.Provider
}

// New creates a Llama provider.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	return &Provider{
		Provider: openai.NewCompatible("llama", "llama-3.3-70b-versatile",
			"https://api.groq.com/openai/v1", cfg, logger),
	}
}
