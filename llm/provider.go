package llm

import (
	"context"
	"time"
)

// ChatRequest is the normalized request every adapter accepts. The backend
// assembles the full prompt (document context, instructions, user message)
// before dispatch, so a single plain-text prompt is sufficient.
type ChatRequest struct {
	Prompt      string        `json:"prompt"`
	Model       string        `json:"model,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ChatResponse is the normalized response every adapter must produce.
// Vendor-shape parsing is isolated to exactly one function per adapter.
type ChatResponse struct {
	Text      string    `json:"text"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	RawStatus int       `json:"raw_status,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// StreamChunk is one increment of a streaming reply.
type StreamChunk struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Content  string `json:"content,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Err      error  `json:"-"`
}

// HealthStatus is the result of a provider probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the unified adapter interface. Each implementation translates
// the normalized prompt into one vendor's wire format and back.
type Provider interface {
	// Completion issues one synchronous chat request and returns the full reply.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck performs a minimal probe used only to classify the
	// provider's current availability.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string

	// SupportsStreaming reports whether the provider delivers replies
	// incrementally. Providers returning false are invoked synchronously and
	// wrapped as a one-chunk stream by the dispatcher.
	SupportsStreaming() bool
}

// Streamer is implemented by providers whose wire protocol supports
// token-by-token delivery.
type Streamer interface {
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
}
