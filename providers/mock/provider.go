// Package mock provides a deterministic in-process provider used in tests and
// for running the backend with no vendor credentials at all.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amul-dhungel/Deepwork/llm"
	"github.com/amul-dhungel/Deepwork/types"
)

// Provider is a fake LLM that echoes a canned reply. It performs no I/O.
type Provider struct {
	// Reply overrides the generated text when non-empty.
	Reply string

	// Fail, when set, is returned from every call.
	Fail error

	// ChunkDelay is an optional pause between stream chunks.
	ChunkDelay time.Duration
}

// New creates a mock provider with default behavior.
func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "mock" }

func (p *Provider) SupportsStreaming() bool { return true }

func (p *Provider) reply(prompt string) string {
	if p.Reply != "" {
		return p.Reply
	}
	return fmt.Sprintf("mock reply to %d chars of prompt", len(prompt))
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	if p.Fail != nil {
		return &llm.HealthStatus{Healthy: false}, p.Fail
	}
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.Fail != nil {
		return nil, p.Fail
	}
	if req.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty prompt").WithProvider(p.Name())
	}

	return &llm.ChatResponse{
		Text:      p.reply(req.Prompt),
		Provider:  p.Name(),
		Model:     "mock-1",
		RawStatus: 200,
		CreatedAt: time.Now(),
	}, nil
}

// Stream splits the reply into word-sized chunks so streaming consumers can be
// exercised without a live server.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if p.Fail != nil {
		return nil, p.Fail
	}

	words := strings.SplitAfter(p.reply(req.Prompt), " ")
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for _, w := range words {
			if p.ChunkDelay > 0 {
				time.Sleep(p.ChunkDelay)
			}
			select {
			case ch <- llm.StreamChunk{Provider: p.Name(), Model: "mock-1", Content: w}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- llm.StreamChunk{Provider: p.Name(), Model: "mock-1", Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
